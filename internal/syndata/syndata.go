// Package syndata generates synthetic market data for a stubbed venue:
// Gaussian prices, Poisson volumes, serially correlated price series, and
// unique identifiers. A deterministic seeded source drives reproducible
// test output; crypto/rand-backed entropy drives everything else.
package syndata

import (
	cryptorand "crypto/rand"
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/fixharness/engine/internal/calendar"
	"github.com/fixharness/engine/internal/errs"
	"github.com/fixharness/engine/internal/util"
	"github.com/google/uuid"
)

const defaultSigFigs = 10

// Generator produces synthetic data. It is safe for concurrent use: each
// call either draws from crypto/rand (no shared state) or, in deterministic
// mode, locks a private *rand.Rand.
type Generator struct {
	calendar      *calendar.Calendar
	mu            sync.Mutex
	deterministic bool
	rng           *rand.Rand
	lastKeyMillis int64
}

// New returns a Generator backed by crypto/rand, settling dates against cal.
func New(cal *calendar.Calendar) *Generator {
	return &Generator{calendar: cal}
}

// NewDeterministic returns a Generator seeded for reproducible test output.
func NewDeterministic(cal *calendar.Calendar, seed int64) *Generator {
	return &Generator{
		calendar:      cal,
		deterministic: true,
		rng:           rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data only
	}
}

func (g *Generator) float64() float64 {
	if g.deterministic {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.rng.Float64()
	}
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// normFloat64 draws a standard normal deviate via Box-Muller, so the
// deterministic path stays reproducible from a single float64 stream
// rather than depending on math/rand's own NormFloat64 internals.
func (g *Generator) normFloat64() float64 {
	u1 := g.float64()
	u2 := g.float64()
	if u1 <= 0 {
		u1 = 1e-300
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func (g *Generator) intn(n int64) int64 {
	if n <= 0 {
		return 0
	}
	if g.deterministic {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.rng.Int63n(n)
	}
	r, err := cryptorand.Int(cryptorand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return r.Int64()
}

// Price draws |N(mu, sigma)|, rounded to 10 significant figures. sigma must
// be >= 0; sigma == 0 returns |mu| exactly.
func (g *Generator) Price(mu, sigma float64) (float64, error) {
	if sigma < 0 {
		return 0, fmt.Errorf("%w: sigma must be >= 0, got %v", errs.ErrInvalidParameter, sigma)
	}
	if sigma == 0 {
		return math.Abs(mu), nil
	}
	v := math.Abs(mu + sigma*g.normFloat64())
	return util.RoundSignificant(v, defaultSigFigs), nil
}

// Volume draws Poisson(lambda), clamped to >= 1. lambda must be > 0.
func (g *Generator) Volume(lambda float64) (int64, error) {
	if lambda <= 0 {
		return 0, fmt.Errorf("%w: lambda must be > 0, got %v", errs.ErrInvalidParameter, lambda)
	}
	n := g.poisson(lambda)
	if n < 1 {
		n = 1
	}
	return n, nil
}

// poisson implements Knuth's algorithm. For large lambda this is O(lambda)
// draws; the harness's use case (simulated order/trade volumes) never
// needs lambda large enough for that to matter.
func (g *Generator) poisson(lambda float64) int64 {
	l := math.Exp(-lambda)
	k := int64(0)
	p := 1.0
	for {
		k++
		p *= g.float64()
		if p <= l {
			return k - 1
		}
	}
}

// CorrelatedPrices returns n positive decimals from a serially-correlated
// AR(1)-driven price process: the first sample is N(0,1); subsequent
// Z[i] = rho*Z[i-1] + sqrt(1-rho^2)*eps[i], eps[i] ~ N(0,1) iid;
// price[i] = |mu + sigma*Z[i]|. rho must be in [-1,1], n must be > 0.
func (g *Generator) CorrelatedPrices(mu, sigma, rho float64, n int) ([]float64, error) {
	if rho < -1 || rho > 1 {
		return nil, fmt.Errorf("%w: rho must be in [-1,1], got %v", errs.ErrInvalidParameter, rho)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be > 0, got %d", errs.ErrInvalidParameter, n)
	}
	out := make([]float64, n)
	z := g.normFloat64()
	out[0] = util.RoundSignificant(math.Abs(mu+sigma*z), defaultSigFigs)
	scale := math.Sqrt(1 - rho*rho)
	for i := 1; i < n; i++ {
		eps := g.normFloat64()
		z = rho*z + scale*eps
		out[i] = util.RoundSignificant(math.Abs(mu+sigma*z), defaultSigFigs)
	}
	return out, nil
}

// SettlementType mirrors calendar.SettlementType so callers of this
// package don't need a second import for the common case.
type SettlementType = calendar.SettlementType

// Re-exported settlement constants.
const (
	T0 = calendar.T0
	T1 = calendar.T1
	T2 = calendar.T2
)

// SettlementDate returns today advanced by the settlement type's business
// days against the generator's configured calendar.
func (g *Generator) SettlementDate(today time.Time, t SettlementType) time.Time {
	return g.calendar.AddBusinessDays(today, t.Days())
}

const (
	marketOpenHour    = 9
	marketOpenMinute  = 30
	marketCloseHour   = 16
	secondsInWindow   = (marketCloseHour - marketOpenHour) * 3600 - marketOpenMinute*60
)

// MarketHoursTimestamp returns a uniformly-distributed second-granularity
// timestamp within the 9:30-16:00 trading window on day, in day's location.
func (g *Generator) MarketHoursTimestamp(day time.Time) time.Time {
	open := time.Date(day.Year(), day.Month(), day.Day(), marketOpenHour, marketOpenMinute, 0, 0, day.Location())
	offset := g.intn(int64(secondsInWindow) + 1)
	return open.Add(time.Duration(offset) * time.Second)
}

// NewRequestKey returns "{prefix}-{ms-since-epoch}-{4-digit random}",
// guaranteed unique across two consecutive calls on the same Generator
// within a single goroutine (the millisecond part is read under the
// generator's lock and forced to increase on every call, so two keys from
// one Generator never share it).
func (g *Generator) NewRequestKey(prefix string) string {
	suffix := g.intn(10000)

	g.mu.Lock()
	ms := time.Now().UnixMilli()
	if ms <= g.lastKeyMillis {
		ms = g.lastKeyMillis + 1
	}
	g.lastKeyMillis = ms
	g.mu.Unlock()

	return fmt.Sprintf("%s-%d-%04d", prefix, ms, suffix)
}

// AccountID returns "{prefix}-{8-digit zero-padded random}".
func (g *Generator) AccountID(prefix string) string {
	return fmt.Sprintf("%s-%08d", prefix, g.intn(100000000))
}

// NewLabel returns a short, unique label for an unnamed stub rule.
func NewLabel() string {
	return uuid.New().String()[:8]
}
