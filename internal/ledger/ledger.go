// Package ledger implements the three-way reconciliation ledger: sharded
// per-source trade record stores, a field-level comparison engine under
// numeric tolerance, and a fluent assertion surface over the results.
package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fixharness/engine/internal/errs"
	"github.com/fixharness/engine/internal/util"
	"golang.org/x/sync/errgroup"
)

// Source identifies which of the three independent channels a TradeRecord
// was observed on.
type Source int

// The closed, three-valued source enumeration.
const (
	FIX Source = iota
	MQ
	API
	numSources
)

// String renders the source the way verdict messages quote it.
func (s Source) String() string {
	switch s {
	case FIX:
		return "FIX"
	case MQ:
		return "MQ"
	case API:
		return "API"
	default:
		return "UNKNOWN"
	}
}

// TradeRecord is a per-source normalized view of a fill.
type TradeRecord struct {
	Source              Source
	RequestKey          string // optional; correlation falls back to OrderID
	OrderID             string // optional venue order id
	Symbol              string
	Quantity            float64
	Price               float64
	Amount              float64
	Currency            string
	SettlementDate      *time.Time // optional
	ExecutionTimestamp  time.Time
	Account             string // optional
	ExecType            string
	Aux                 map[string]string
}

// CorrelationKey returns RequestKey if set, else OrderID.
func (r TradeRecord) CorrelationKey() string {
	if r.RequestKey != "" {
		return r.RequestKey
	}
	return r.OrderID
}

// FieldVerdict is a single field's comparison outcome across the three
// sources. A value of "N/A" means that source had no record under this key,
// or, for settlementDate and account only, that the field was unset within
// it. Unset numeric and other string fields show their zero value.
type FieldVerdict struct {
	FieldName string
	FIXValue  string
	MQValue   string
	APIValue  string
	Match     bool
}

// ReconciliationResult is the ordered verdict list for one correlation key.
type ReconciliationResult struct {
	CorrelationKey string
	Verdicts       []FieldVerdict
	Passed         bool
}

// Config tunes the ledger's numeric comparison.
type Config struct {
	// Precision is the number of significant figures values are rounded
	// to (banker's rounding) before comparison.
	Precision int
	// Tolerance is the maximum allowed absolute difference between two
	// rounded values for them to be considered equal.
	Tolerance float64
}

// DefaultConfig is the ledger's out-of-the-box precision and tolerance.
var DefaultConfig = Config{Precision: 8, Tolerance: 1e-4}

// Ledger holds three independent, insertion-ordered record stores (one per
// Source) keyed by correlation key, plus the reconciliation engine over
// them.
type Ledger struct {
	mu      sync.RWMutex
	records [numSources]map[string]TradeRecord
	order   []string
	seen    map[string]bool
	cfg     Config
}

// New returns an empty Ledger using cfg (DefaultConfig if the zero value).
func New(cfg Config) *Ledger {
	if cfg.Precision <= 0 {
		cfg.Precision = DefaultConfig.Precision
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig.Tolerance
	}
	l := &Ledger{cfg: cfg, seen: make(map[string]bool)}
	for i := range l.records {
		l.records[i] = make(map[string]TradeRecord)
	}
	return l
}

// AddRecord inserts rec into its source's map, keyed by its correlation
// key. A repeat key overwrites the prior record for that source. Fails
// with errs.ErrMissingCorrelationKey if rec has neither a request key nor
// an order id.
func (l *Ledger) AddRecord(rec TradeRecord) error {
	key := rec.CorrelationKey()
	if key == "" {
		return fmt.Errorf("%w: record from source %s has neither request key nor order id", errs.ErrMissingCorrelationKey, rec.Source)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.Source][key] = rec
	if !l.seen[key] {
		l.seen[key] = true
		l.order = append(l.order, key)
	}
	return nil
}

// Clear drops all three source maps.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		l.records[i] = make(map[string]TradeRecord)
	}
	l.order = nil
	l.seen = make(map[string]bool)
}

func (l *Ledger) snapshot(key string) (recs [numSources]TradeRecord, present [numSources]bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.records {
		if r, ok := l.records[i][key]; ok {
			recs[i] = r
			present[i] = true
		}
	}
	return
}

// Reconcile builds a ReconciliationResult comparing the (at most) three
// records stored under key, across seven fields in a fixed order: price,
// quantity, amount, settlement date, symbol, currency, account. It takes
// a consistent snapshot of key's three records
// up front, so it is a pure function of the ledger's state at the moment
// it's called (calling it twice on unchanged state yields identical
// verdicts).
func (l *Ledger) Reconcile(key string) *ReconciliationResult {
	recs, present := l.snapshot(key)

	verdicts := []FieldVerdict{
		numericVerdict("price", l.cfg, present, recs[FIX].Price, recs[MQ].Price, recs[API].Price),
		numericVerdict("quantity", l.cfg, present, recs[FIX].Quantity, recs[MQ].Quantity, recs[API].Quantity),
		numericVerdict("amount", l.cfg, present, recs[FIX].Amount, recs[MQ].Amount, recs[API].Amount),
		dateVerdict("settlementDate", present, recs[FIX].SettlementDate, recs[MQ].SettlementDate, recs[API].SettlementDate),
		stringVerdict("symbol", present, recs[FIX].Symbol, recs[MQ].Symbol, recs[API].Symbol),
		stringVerdict("currency", present, recs[FIX].Currency, recs[MQ].Currency, recs[API].Currency),
		accountVerdict("account", present, recs[FIX].Account, recs[MQ].Account, recs[API].Account),
	}

	passed := true
	for _, v := range verdicts {
		if !v.Match {
			passed = false
			break
		}
	}

	return &ReconciliationResult{CorrelationKey: key, Verdicts: verdicts, Passed: passed}
}

// ReconcileAll enumerates the union of keys across the three source maps,
// in first-seen insertion order, and reconciles each one. Reconciliation
// of independent keys is embarrassingly parallel, so it fans out through
// an errgroup.Group rather than a sequential loop.
func (l *Ledger) ReconcileAll() ([]*ReconciliationResult, error) {
	l.mu.RLock()
	keys := append([]string(nil), l.order...)
	l.mu.RUnlock()

	results := make([]*ReconciliationResult, len(keys))
	var g errgroup.Group
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			results[i] = l.Reconcile(key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// VerifyRejectionHandled reports whether the FIX-source map contains any
// record with a matching symbol and ExecType "8" (rejected).
func (l *Ledger) VerifyRejectionHandled(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.records[FIX] {
		if r.Symbol == symbol && r.ExecType == "8" {
			return true
		}
	}
	return false
}

// Keys returns every known correlation key in first-seen insertion order,
// for callers that want to drive their own iteration instead of
// ReconcileAll.
func (l *Ledger) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

func numericVerdict(name string, cfg Config, present [numSources]bool, fix, mq, api float64) FieldVerdict {
	vals := [numSources]float64{fix, mq, api}
	rounded := [numSources]float64{}
	display := [numSources]string{"N/A", "N/A", "N/A"}
	for i := 0; i < int(numSources); i++ {
		if present[i] {
			rounded[i] = util.RoundSignificant(vals[i], cfg.Precision)
			display[i] = fmt.Sprintf("%g", rounded[i])
		}
	}
	match := true
	pairs := [][2]int{{int(FIX), int(MQ)}, {int(FIX), int(API)}, {int(MQ), int(API)}}
	for _, p := range pairs {
		a, b := p[0], p[1]
		if present[a] && present[b] {
			if math.Abs(rounded[a]-rounded[b]) > cfg.Tolerance {
				match = false
			}
		}
	}
	return FieldVerdict{FieldName: name, FIXValue: display[FIX], MQValue: display[MQ], APIValue: display[API], Match: match}
}

func stringVerdict(name string, present [numSources]bool, fix, mq, api string) FieldVerdict {
	vals := [numSources]string{fix, mq, api}
	return exactVerdict(name, present, vals)
}

func accountVerdict(name string, present [numSources]bool, fix, mq, api string) FieldVerdict {
	// Account is optional even when its record is present; treat an empty
	// string the same as "source absent" for this field.
	p := present
	vals := [numSources]string{fix, mq, api}
	for i, v := range vals {
		if v == "" {
			p[i] = false
		}
	}
	return exactVerdict(name, p, vals)
}

func dateVerdict(name string, present [numSources]bool, fix, mq, api *time.Time) FieldVerdict {
	p := present
	var vals [numSources]string
	for i, t := range [numSources]*time.Time{fix, mq, api} {
		if t == nil {
			p[i] = false
			continue
		}
		vals[i] = t.Format("2006-01-02")
	}
	return exactVerdict(name, p, vals)
}

func exactVerdict(name string, present [numSources]bool, vals [numSources]string) FieldVerdict {
	display := [numSources]string{"N/A", "N/A", "N/A"}
	for i := range vals {
		if present[i] {
			display[i] = vals[i]
		}
	}
	match := true
	pairs := [][2]int{{int(FIX), int(MQ)}, {int(FIX), int(API)}, {int(MQ), int(API)}}
	for _, p := range pairs {
		a, b := p[0], p[1]
		if present[a] && present[b] && vals[a] != vals[b] {
			match = false
		}
	}
	return FieldVerdict{FieldName: name, FIXValue: display[FIX], MQValue: display[MQ], APIValue: display[API], Match: match}
}
