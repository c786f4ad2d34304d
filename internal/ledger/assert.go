package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/fixharness/engine/internal/errs"
	"github.com/fixharness/engine/internal/util"
)

// Assertions is a fluent, chainable surface over a single reconciliation
// result. Each Assert* method records its outcome and returns the receiver
// so calls can be strung together; Err joins every recorded failure into a
// single error, if any.
type Assertions struct {
	result *ReconciliationResult
	errs   []error
}

// Assert starts a fluent assertion chain against key's current
// reconciliation in l.
func (l *Ledger) Assert(key string) *Assertions {
	return &Assertions{result: l.Reconcile(key)}
}

func (a *Assertions) verdict(field string) (FieldVerdict, bool) {
	for _, v := range a.result.Verdicts {
		if v.FieldName == field {
			return v, true
		}
	}
	return FieldVerdict{}, false
}

func (a *Assertions) fail(field string, v FieldVerdict) {
	a.errs = append(a.errs, &errs.AssertionFailure{
		Key:      a.result.CorrelationKey,
		Field:    field,
		FIXValue: v.FIXValue,
		MQValue:  v.MQValue,
		APIValue: v.APIValue,
	})
}

// AssertParity requires every compared field to match across all sources
// that carry a record for this key.
func (a *Assertions) AssertParity() *Assertions {
	for _, v := range a.result.Verdicts {
		if !v.Match {
			a.fail(v.FieldName, v)
		}
	}
	return a
}

// AssertFieldMatch requires the single named field to match. name must be
// one of "price", "quantity", "amount", "settlementDate", "symbol",
// "currency", "account".
func (a *Assertions) AssertFieldMatch(name string) *Assertions {
	v, ok := a.verdict(name)
	if !ok {
		a.errs = append(a.errs, fmt.Errorf("%w: unknown field %q", errs.ErrInvalidParameter, name))
		return a
	}
	if !v.Match {
		a.fail(name, v)
	}
	return a
}

// AssertSettlementDateMatch requires the settlementDate field to match.
func (a *Assertions) AssertSettlementDateMatch() *Assertions {
	return a.AssertFieldMatch("settlementDate")
}

// AssertAmountMatch re-checks the "amount" and "price" verdicts against an
// assertion-specific tolerance, independent of the ledger's configured
// comparison tolerance used by Reconcile/AssertParity/AssertFieldMatch.
//
// Like Reconcile, it only compares cross-source pairs where both sides are
// present: a side a source never reported is not a mismatch, it's simply
// nothing to compare. This mirrors Reconcile's own "N/A" treatment rather
// than tightening it, even though the two call different tolerances.
func (a *Assertions) AssertAmountMatch(tolerance float64) *Assertions {
	for _, field := range []string{"amount", "price"} {
		v, ok := a.verdict(field)
		if !ok {
			a.errs = append(a.errs, fmt.Errorf("%w: unknown field %q", errs.ErrInvalidParameter, field))
			continue
		}
		vals := map[string]string{"FIX": v.FIXValue, "MQ": v.MQValue, "API": v.APIValue}
		present := map[string]float64{}
		for src, s := range vals {
			if s == "N/A" {
				continue
			}
			f, err := parseRounded(s)
			if err != nil {
				continue
			}
			present[src] = f
		}
		ok = true
		pairs := [][2]string{{"FIX", "MQ"}, {"FIX", "API"}, {"MQ", "API"}}
		for _, p := range pairs {
			va, pa := present[p[0]]
			vb, pb := present[p[1]]
			if pa && pb && math.Abs(va-vb) > tolerance {
				ok = false
			}
		}
		if !ok {
			a.fail(field, v)
		}
	}
	return a
}

func parseRounded(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return util.RoundSignificant(f, DefaultConfig.Precision), err
}

// Err returns every recorded failure joined into a single error (so a
// multi-field AssertParity mismatch reports every field it found, not just
// the first), or nil if every assertion in the chain passed.
func (a *Assertions) Err() error {
	if len(a.errs) == 0 {
		return nil
	}
	return errors.Join(a.errs...)
}

// Errs returns every recorded failure in the order the assertions ran.
func (a *Assertions) Errs() []error {
	return a.errs
}
