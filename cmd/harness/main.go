// Package main provides the entry point for the fixharness test engine: it
// wires the calendar, synthetic data generator, stub registry, interceptor,
// correlator, and reconciliation ledger together, replays a fixed set of
// demo scenarios against them, and optionally serves the read-only
// dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fixharness/engine/internal/calendar"
	"github.com/fixharness/engine/internal/correlate"
	"github.com/fixharness/engine/internal/dashboard"
	"github.com/fixharness/engine/internal/harnesscfg"
	"github.com/fixharness/engine/internal/intercept"
	"github.com/fixharness/engine/internal/ledger"
	"github.com/fixharness/engine/internal/message"
	"github.com/fixharness/engine/internal/stub"
	"github.com/fixharness/engine/internal/syndata"
	"github.com/fixharness/engine/internal/transport"
	"github.com/fixharness/engine/internal/translate"
	"github.com/sirupsen/logrus"
)

// FIX-style body tags used by the demo scenarios. The engine itself is
// wire-format agnostic; these numbers only give the demo something
// concrete to read and write.
const (
	tagSymbol         = 55
	tagPrice          = 44
	tagQuantity       = 38
	tagExecType       = 150
	tagText           = 58
	tagSettlementDate = 64
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to harness.yaml (optional; built-in defaults used if omitted)")
	flag.Parse()

	logger := log.New(os.Stdout, "[harness] ", log.LstdFlags)

	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		return 1
	}

	engine := newEngine(cfg, logger)

	results := engine.runScenarios()
	passed := 0
	for _, r := range results {
		status := "FAIL"
		if r.passed {
			status = "PASS"
			passed++
		}
		logger.Printf("%-4s %s: %s", status, r.name, r.detail)
	}
	logger.Printf("%d/%d scenarios passed", passed, len(results))

	exitCode := 0
	if passed != len(results) {
		exitCode = 1
	}

	if !cfg.Dashboard.Enabled {
		return exitCode
	}

	dashLogger := logrus.New()
	dashLogger.SetOutput(os.Stdout)
	dashLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dashServer := dashboard.NewServer(dashboard.Config{
		Port:              cfg.Dashboard.Port,
		AuthTokens:        cfg.Dashboard.AuthTokens,
		ReadTimeout:       cfg.Dashboard.ReadTimeout,
		WriteTimeout:      cfg.Dashboard.WriteTimeout,
		IdleTimeout:       cfg.Dashboard.IdleTimeout,
		ReadHeaderTimeout: cfg.Dashboard.ReadHeaderTimeout,
	}, engine.registry, engine.ledger, dashLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received")
		cancel()
	}()

	go func() {
		if err := dashServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("dashboard server error: %v", err)
		}
	}()
	logger.Printf("dashboard listening on :%d", cfg.Dashboard.Port)

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Dashboard.ShutdownTimeout)
	defer shutdownCancel()
	if err := dashServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("dashboard shutdown error: %v", err)
	}

	return exitCode
}

func loadConfig(path string) (*harnesscfg.Config, error) {
	if path == "" {
		cfg := &harnesscfg.Config{}
		cfg.Normalize()
		return cfg, nil
	}
	return harnesscfg.Load(path)
}

// engine bundles every wired component the demo scenarios exercise.
type engine struct {
	logger     *log.Logger
	cal        *calendar.Calendar
	gen        *syndata.Generator
	registry   *stub.Registry
	ledger     *ledger.Ledger
	correlator *correlate.Correlator
	toVenue    *transport.Loopback
	toClient   *transport.Loopback
}

// venueAdapter bridges the venue-side transport to the interceptor: every
// message the loopback delivers to it is handed to Handle.
type venueAdapter struct {
	ic      *intercept.Interceptor
	session transport.Session
}

func (v *venueAdapter) Deliver(msg *message.Message) {
	_, _ = v.ic.Handle(context.Background(), msg, v.session)
}

func newEngine(cfg *harnesscfg.Config, logger *log.Logger) *engine {
	cal := calendarFromPreset(cfg.Calendar)
	gen := syndata.New(cal)
	if cfg.SynData.Deterministic {
		gen = syndata.NewDeterministic(cal, cfg.SynData.Seed)
	}
	registry := stub.New()
	ldg := ledger.New(ledger.Config{Precision: cfg.Ledger.Precision, Tolerance: cfg.Ledger.Tolerance})

	toVenue := transport.NewLoopback()
	toClient := transport.NewLoopback()

	ic := intercept.New(registry, toClient, intercept.WithLogger(logger))
	session := transport.Session{LocalID: "VENUE", RemoteID: "CLIENT"}
	toVenue.Subscribe(&venueAdapter{ic: ic, session: session})

	corr := correlate.New(toVenue)
	corr.BindSession(transport.Session{LocalID: "CLIENT", RemoteID: "VENUE"})
	toClient.Subscribe(corr)

	return &engine{
		logger:     logger,
		cal:        cal,
		gen:        gen,
		registry:   registry,
		ledger:     ldg,
		correlator: corr,
		toVenue:    toVenue,
		toClient:   toClient,
	}
}

func calendarFromPreset(cfg harnesscfg.CalendarConfig) *calendar.Calendar {
	var cal *calendar.Calendar
	switch cfg.Preset {
	case "LSE":
		cal = calendar.LSE()
	case "TSE":
		cal = calendar.TSE()
	default:
		cal = calendar.NYSE()
	}
	for _, d := range cfg.ExplicitHolidays {
		t, err := time.Parse("2006-01-02", d)
		if err == nil {
			cal.WithExplicitHolidays(t)
		}
	}
	return cal
}

type scenarioResult struct {
	name   string
	passed bool
	detail string
}

func (e *engine) runScenarios() []scenarioResult {
	return []scenarioResult{
		e.scenarioFatFingerRejection(),
		e.scenarioFillReconciliation(),
		e.scenarioSequentialResponses(),
		e.scenarioSettlementWithHoliday(),
		e.scenarioTranslator(),
		e.scenarioCorrelatorTimeout(),
	}
}

// scenarioFatFingerRejection is S1: a stub rule rejects an AAPL order, and
// the rejection is recorded and verifiable in the ledger.
func (e *engine) scenarioFatFingerRejection() scenarioResult {
	_, err := e.registry.Register(stub.NewBuilder(func(m *message.Message) bool {
		s, _ := m.GetString(tagSymbol)
		return s == "AAPL"
	}).Respond(func(m *message.Message) *message.Message {
		resp := m.Clone()
		resp.SetChar(tagExecType, '8')
		resp.SetString(tagText, "Fat-finger price check failed")
		return resp
	}).Label("S1-fat-finger"))
	if err != nil {
		return scenarioResult{"S1 fat-finger rejection", false, err.Error()}
	}

	order := message.New()
	order.SetString(tagSymbol, "AAPL")
	order.SetDecimal(tagPrice, 9999)
	order.SetInt(tagQuantity, 100)
	order.SetClientOrderID("K1")

	resp, err := e.correlator.SendAndAwait(context.Background(), order, "K1", 2*time.Second)
	if err != nil {
		return scenarioResult{"S1 fat-finger rejection", false, err.Error()}
	}

	execType, _ := resp.GetChar(tagExecType)
	text, _ := resp.GetString(tagText)
	coid, _ := resp.ClientOrderID()

	if err := e.ledger.AddRecord(ledger.TradeRecord{
		Source: ledger.FIX, RequestKey: "K1", Symbol: "AAPL", ExecType: "8",
	}); err != nil {
		return scenarioResult{"S1 fat-finger rejection", false, err.Error()}
	}

	ok := execType == '8' && text == "Fat-finger price check failed" && coid == "K1" && e.ledger.VerifyRejectionHandled("AAPL")
	return scenarioResult{"S1 fat-finger rejection", ok, fmt.Sprintf("execType=%c text=%q coid=%q", execType, text, coid)}
}

// scenarioFillReconciliation is S2: three independently-observed sources
// agree on the same fill, and reconciliation passes on all seven fields.
func (e *engine) scenarioFillReconciliation() scenarioResult {
	price, err := e.gen.Price(420.0, 0.5)
	if err != nil {
		return scenarioResult{"S2 fill reconciliation", false, err.Error()}
	}
	const qty = 100.0
	amount := price * qty
	settle := e.gen.SettlementDate(time.Now(), syndata.T2)

	key := "K2"
	for _, src := range []ledger.Source{ledger.FIX, ledger.MQ, ledger.API} {
		if err := e.ledger.AddRecord(ledger.TradeRecord{
			Source: src, RequestKey: key, Symbol: "MSFT", Price: price, Quantity: qty,
			Amount: amount, Currency: "USD", SettlementDate: &settle, Account: "ACC-001",
		}); err != nil {
			return scenarioResult{"S2 fill reconciliation", false, err.Error()}
		}
	}

	result := e.ledger.Reconcile(key)
	return scenarioResult{"S2 fill reconciliation", result.Passed, fmt.Sprintf("%d verdicts, passed=%v", len(result.Verdicts), result.Passed)}
}

// scenarioSequentialResponses is S3: a rule with two generators is invoked
// four times; indices observed are 0, 1, 1, 1 and the call count is 4.
func (e *engine) scenarioSequentialResponses() scenarioResult {
	var seen []string
	rule, err := e.registry.Register(stub.NewBuilder(func(m *message.Message) bool {
		s, _ := m.GetString(tagSymbol)
		return s == "TSLA"
	}).Respond(
		func(m *message.Message) *message.Message { seen = append(seen, "g1"); return m.Clone() },
		func(m *message.Message) *message.Message { seen = append(seen, "g2"); return m.Clone() },
	).Label("S3-sequential"))
	if err != nil {
		return scenarioResult{"S3 sequential responses", false, err.Error()}
	}

	order := message.New()
	order.SetString(tagSymbol, "TSLA")
	for i := 0; i < 4; i++ {
		stub.GenerateResponse(e.registry.FindMatch(order), order)
	}

	ok := len(seen) == 4 && seen[0] == "g1" && seen[1] == "g2" && seen[2] == "g2" && seen[3] == "g2" && rule.CallCount() == 4
	return scenarioResult{"S3 sequential responses", ok, fmt.Sprintf("sequence=%v callCount=%d", seen, rule.CallCount())}
}

// scenarioSettlementWithHoliday is S4: Dec 24 2026 plus one business day,
// with Dec 25 2026 an explicit holiday, lands on Dec 28 2026 (Monday).
func (e *engine) scenarioSettlementWithHoliday() scenarioResult {
	cal := calendar.NYSE().WithExplicitHolidays(time.Date(2026, time.December, 25, 0, 0, 0, 0, time.UTC))
	start := time.Date(2026, time.December, 24, 0, 0, 0, 0, time.UTC)
	want := time.Date(2026, time.December, 28, 0, 0, 0, 0, time.UTC)

	got := cal.AddBusinessDays(start, 1)
	ok := got.Equal(want)
	return scenarioResult{"S4 settlement with holiday", ok, fmt.Sprintf("got=%s want=%s", got.Format("2006-01-02"), want.Format("2006-01-02"))}
}

// scenarioTranslator is S5: a fixed English sentence translates to an
// exact Order Request.
func (e *engine) scenarioTranslator() scenarioResult {
	req, err := translate.Translate("Sell 500 shares of AAPL limit at 180")
	if err != nil {
		return scenarioResult{"S5 scenario translator", false, err.Error()}
	}
	price, hasPrice := req.Price()
	ok := req.Side() == message.SideSell && req.Type() == message.TypeLimit && req.Symbol() == "AAPL" &&
		req.Quantity() == 500 && hasPrice && price == 180 && req.TimeInForce() == message.TIFDay && req.Currency() == "USD"
	return scenarioResult{"S5 scenario translator", ok, fmt.Sprintf("%+v", req)}
}

// scenarioCorrelatorTimeout is S6: sendAndAwait with no inbound delivery
// fails with Timeout after at least the configured duration, and a later
// delivery for the same key is silently dropped.
func (e *engine) scenarioCorrelatorTimeout() scenarioResult {
	corr := correlate.New(e.toVenue)
	corr.BindSession(transport.Session{LocalID: "CLIENT", RemoteID: "VENUE-UNRESPONSIVE"})

	req := message.New()
	req.SetClientOrderID("K6")

	start := time.Now()
	_, err := corr.SendAndAwait(context.Background(), req, "K6", 50*time.Millisecond)
	elapsed := time.Since(start)

	late := message.New()
	late.SetClientOrderID("K6")
	corr.Deliver(late) // must not panic or hang

	ok := err != nil && elapsed >= 50*time.Millisecond
	return scenarioResult{"S6 correlator timeout", ok, fmt.Sprintf("err=%v elapsed=%s", err, elapsed)}
}
