package ledger

import (
	"testing"
	"time"

	"github.com/fixharness/engine/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settleDate(d string) *time.Time {
	t, err := time.Parse("2006-01-02", d)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestAddRecord_MissingCorrelationKeyRejected(t *testing.T) {
	l := New(DefaultConfig)
	err := l.AddRecord(TradeRecord{Source: FIX, Symbol: "AAPL"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrMissingCorrelationKey)
}

// TestFillReconciliation_ThreeWayMatch reproduces the canonical fill
// scenario: a FIX execution report, an MQ settlement event, and an API
// trade confirmation, all agreeing on the same fill to within tolerance.
func TestFillReconciliation_ThreeWayMatch(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-1"

	require.NoError(t, l.AddRecord(TradeRecord{
		Source: FIX, RequestKey: key, Symbol: "AAPL", Quantity: 100, Price: 189.995,
		Amount: 18999.50, Currency: "USD", SettlementDate: settleDate("2026-08-04"),
		Account: "ACC-001", ExecType: "2",
	}))
	require.NoError(t, l.AddRecord(TradeRecord{
		Source: MQ, RequestKey: key, Symbol: "AAPL", Quantity: 100, Price: 189.995,
		Amount: 18999.50, Currency: "USD", SettlementDate: settleDate("2026-08-04"),
		Account: "ACC-001",
	}))
	require.NoError(t, l.AddRecord(TradeRecord{
		Source: API, RequestKey: key, Symbol: "AAPL", Quantity: 100, Price: 189.99500001,
		Amount: 18999.50003, Currency: "USD", SettlementDate: settleDate("2026-08-04"),
		Account: "ACC-001",
	}))

	result := l.Reconcile(key)
	assert.True(t, result.Passed)
	assert.Len(t, result.Verdicts, 7)
	for _, v := range result.Verdicts {
		assert.Truef(t, v.Match, "field %s expected to match: fix=%s mq=%s api=%s", v.FieldName, v.FIXValue, v.MQValue, v.APIValue)
	}
}

func TestReconcile_PriceOutsideTolerance_Fails(t *testing.T) {
	l := New(Config{Precision: 8, Tolerance: 0.001})
	key := "REQ-2"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Price: 100.00}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Price: 100.05}))

	result := l.Reconcile(key)
	assert.False(t, result.Passed)

	var priceVerdict FieldVerdict
	for _, v := range result.Verdicts {
		if v.FieldName == "price" {
			priceVerdict = v
		}
	}
	assert.False(t, priceVerdict.Match)
	assert.Equal(t, "N/A", priceVerdict.APIValue)
}

func TestReconcile_AbsentSourceIsVacuousMatch(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-3"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Symbol: "MSFT", Price: 420.0}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Symbol: "MSFT", Price: 420.0}))
	// No API record under this key at all.

	result := l.Reconcile(key)
	assert.True(t, result.Passed)
	for _, v := range result.Verdicts {
		assert.Equal(t, "N/A", v.APIValue)
	}
}

func TestReconcile_SettlementDateNullCompareEqual(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-4"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, SettlementDate: settleDate("2026-08-04")}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, SettlementDate: nil}))

	result := l.Reconcile(key)
	var dateVerdict FieldVerdict
	for _, v := range result.Verdicts {
		if v.FieldName == "settlementDate" {
			dateVerdict = v
		}
	}
	assert.True(t, dateVerdict.Match)
	assert.Equal(t, "N/A", dateVerdict.MQValue)
}

func TestReconcile_SettlementDateMismatchFails(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-5"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, SettlementDate: settleDate("2026-08-04")}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, SettlementDate: settleDate("2026-08-05")}))

	result := l.Reconcile(key)
	assert.False(t, result.Passed)
}

func TestReconcile_AccountOptionalAbsentTreatedAsMatch(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-6"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Account: "ACC-001"}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Account: ""}))

	result := l.Reconcile(key)
	var acctVerdict FieldVerdict
	for _, v := range result.Verdicts {
		if v.FieldName == "account" {
			acctVerdict = v
		}
	}
	assert.True(t, acctVerdict.Match)
	assert.Equal(t, "N/A", acctVerdict.MQValue)
}

func TestVerifyRejectionHandled(t *testing.T) {
	l := New(DefaultConfig)
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: "REQ-7", Symbol: "AAPL", ExecType: "8"}))

	assert.True(t, l.VerifyRejectionHandled("AAPL"))
	assert.False(t, l.VerifyRejectionHandled("MSFT"))
}

func TestReconcileAll_PreservesInsertionOrder(t *testing.T) {
	l := New(DefaultConfig)
	keys := []string{"REQ-A", "REQ-B", "REQ-C"}
	for _, k := range keys {
		require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: k, Symbol: "AAPL"}))
	}

	results, err := l.ReconcileAll()
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, k := range keys {
		assert.Equal(t, k, results[i].CorrelationKey)
	}
}

func TestAssertParity_PassesWhenAllMatch(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-8"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Symbol: "AAPL", Price: 100, Quantity: 10, Amount: 1000, Currency: "USD"}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Symbol: "AAPL", Price: 100, Quantity: 10, Amount: 1000, Currency: "USD"}))

	assert.NoError(t, l.Assert(key).AssertParity().Err())
}

func TestAssertParity_FailsWithAssertionFailureDetails(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-9"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Symbol: "AAPL"}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Symbol: "MSFT"}))

	err := l.Assert(key).AssertParity().Err()
	require.Error(t, err)
	var af *errs.AssertionFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "symbol", af.Field)
	assert.Equal(t, "AAPL", af.FIXValue)
	assert.Equal(t, "MSFT", af.MQValue)
}

// TestAssertAmountMatch_MissingSourceIsVacuousMatch confirms
// AssertAmountMatch treats an entirely absent source the same way
// Reconcile does: nothing to compare isn't a mismatch.
func TestAssertAmountMatch_MissingSourceIsVacuousMatch(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-10"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Amount: 1000.00}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Amount: 1000.00}))
	// No API record at all under this key.

	assert.NoError(t, l.Assert(key).AssertAmountMatch(1e-4).Err())
}

// TestAssertAmountMatch_UsesSuppliedToleranceNotLedgerDefault shows the
// real asymmetry with Reconcile/AssertParity: AssertAmountMatch takes its
// own tolerance from the caller, so it can flag a mismatch a looser
// ledger-wide default would have passed.
func TestAssertAmountMatch_UsesSuppliedToleranceNotLedgerDefault(t *testing.T) {
	l := New(Config{Precision: 8, Tolerance: 1.0}) // very loose ledger default
	key := "REQ-10b"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Amount: 1000.00}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Amount: 1000.50}))

	assert.NoError(t, l.Assert(key).AssertParity().Err(), "ledger's loose default tolerance passes this pair")

	err := l.Assert(key).AssertAmountMatch(1e-4).Err()
	require.Error(t, err, "a tighter caller-supplied tolerance catches the same pair")
	var af *errs.AssertionFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, "amount", af.Field)
}

func TestAssertFieldMatch_UnknownFieldErrors(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-11"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key}))

	err := l.Assert(key).AssertFieldMatch("notAField").Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestAssertSettlementDateMatch(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-12"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, SettlementDate: settleDate("2026-08-04")}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, SettlementDate: settleDate("2026-08-04")}))

	assert.NoError(t, l.Assert(key).AssertSettlementDateMatch().Err())
}

func TestAssertionChaining_AccumulatesMultipleFailures(t *testing.T) {
	l := New(DefaultConfig)
	key := "REQ-13"
	require.NoError(t, l.AddRecord(TradeRecord{Source: FIX, RequestKey: key, Symbol: "AAPL", Currency: "USD"}))
	require.NoError(t, l.AddRecord(TradeRecord{Source: MQ, RequestKey: key, Symbol: "MSFT", Currency: "EUR"}))

	chain := l.Assert(key).AssertFieldMatch("symbol").AssertFieldMatch("currency")
	assert.Len(t, chain.Errs(), 2)
}
