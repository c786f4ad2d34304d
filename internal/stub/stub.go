// Package stub implements the venue-side stub registry: an ordered,
// thread-safe rule set evaluated against inbound messages to synthesize
// venue responses.
package stub

import (
	"fmt"
	"sync"
	"time"

	"github.com/fixharness/engine/internal/errs"
	"github.com/fixharness/engine/internal/message"
	"github.com/fixharness/engine/internal/syndata"
)

// Predicate reports whether a rule applies to msg. A predicate that panics
// is treated as "no match" by the registry; it must never abort evaluation
// of later rules.
type Predicate func(msg *message.Message) bool

// Generator synthesizes a response from an inbound message. A nil return
// means "no response for this invocation".
type Generator func(msg *message.Message) *message.Message

// Rule is a registered stub: a predicate, an ordered response sequence,
// an optional delay, and a label. Rules are returned as snapshots by
// Registry.Mappings; they do not expose their internal call-count state
// for external mutation.
type Rule struct {
	Label string
	Delay time.Duration

	mu         sync.Mutex
	callCount  int64
	predicate  Predicate
	generators []Generator
	nextIndex  int64 // advances per invocation, saturates at len-1
}

// CallCount returns the number of times this rule's response generator has
// been invoked so far.
func (r *Rule) CallCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callCount
}

// generateResponse returns the response for the next invocation of this
// rule, advancing (and saturating) the sticky-terminal index and
// incrementing the call count. Safe for concurrent use by multiple callers
// of the same rule: the index pick, advancement, and count increment all
// happen under the rule's own mutex, so two concurrent invocations observe
// distinct, monotonically-advancing indices and the combined call count
// equals the number of invocations.
func (r *Rule) generateResponse(msg *message.Message) *message.Message {
	r.mu.Lock()
	idx := r.nextIndex
	if idx >= int64(len(r.generators)) {
		idx = int64(len(r.generators)) - 1
	}
	r.nextIndex++
	r.callCount++
	gen := r.generators[idx]
	r.mu.Unlock()
	return gen(msg)
}

// Builder is a fluent, single-use builder for a Rule. Construct with
// NewBuilder; call Register on the owning Registry to commit it.
type Builder struct {
	predicate  Predicate
	generators []Generator
	delay      time.Duration
	label      string
}

// NewBuilder starts a rule builder with the given match predicate.
func NewBuilder(predicate Predicate) *Builder {
	return &Builder{predicate: predicate}
}

// Respond appends one or more response generators to the sequence.
func (b *Builder) Respond(gens ...Generator) *Builder {
	b.generators = append(b.generators, gens...)
	return b
}

// Delay sets the suspension the interceptor applies before delivering a
// response generated by this rule.
func (b *Builder) Delay(d time.Duration) *Builder {
	b.delay = d
	return b
}

// Label sets a human-readable name for introspection and logging. If
// omitted, Register assigns one automatically.
func (b *Builder) Label(label string) *Builder {
	b.label = label
	return b
}

// Registry is an ordered, thread-safe collection of stub rules, evaluated
// in registration order.
//
// The rule slice is copy-on-write behind a mutex: FindMatch takes a
// snapshot reference under a read lock and then scans it lock-free, so a
// concurrent Register or Reset never blocks or races with an
// evaluation already in flight, and an in-flight evaluation always scans
// a single consistent, registration-ordered prefix.
type Registry struct {
	mu    sync.RWMutex
	rules []*Rule
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register validates and appends a rule built by b. Fails with
// errs.ErrEmptyResponseSequence if no generator was supplied.
func (reg *Registry) Register(b *Builder) (*Rule, error) {
	if len(b.generators) == 0 {
		return nil, fmt.Errorf("%w: rule %q has no response generator", errs.ErrEmptyResponseSequence, b.label)
	}
	label := b.label
	if label == "" {
		label = syndata.NewLabel()
	}
	rule := &Rule{
		Label:      label,
		Delay:      b.delay,
		predicate:  b.predicate,
		generators: append([]Generator(nil), b.generators...),
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	next := make([]*Rule, len(reg.rules)+1)
	copy(next, reg.rules)
	next[len(reg.rules)] = rule
	reg.rules = next
	return rule, nil
}

// FindMatch scans rules in registration order and returns the first whose
// predicate returns true for msg. A predicate panic is caught and treated
// as "no match" so a malformed message can never abort the scan partway
// through. Returns nil if no rule matches.
func (reg *Registry) FindMatch(msg *message.Message) *Rule {
	reg.mu.RLock()
	snapshot := reg.rules
	reg.mu.RUnlock()

	for _, r := range snapshot {
		if safePredicate(r.predicate, msg) {
			return r
		}
	}
	return nil
}

// GenerateResponse invokes rule's next response generator. It is exposed
// here (rather than as an exported Rule method) so all advancement goes
// through a single code path the registry can reason about; the
// synchronization itself lives in Rule.generateResponse, which is safe
// for concurrent callers sharing the same *Rule.
func GenerateResponse(r *Rule, msg *message.Message) *message.Message {
	return r.generateResponse(msg)
}

func safePredicate(p Predicate, msg *message.Message) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return p(msg)
}

// Reset empties the rule list. Safe to call concurrently with FindMatch: a
// scan already in progress holds its own snapshot and completes against
// the rules visible when it started.
func (reg *Registry) Reset() {
	reg.mu.Lock()
	reg.rules = nil
	reg.mu.Unlock()
}

// Size returns the current rule count.
func (reg *Registry) Size() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rules)
}

// Mappings returns a snapshot copy of the current rules.
func (reg *Registry) Mappings() []*Rule {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Rule, len(reg.rules))
	copy(out, reg.rules)
	return out
}
