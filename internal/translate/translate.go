// Package translate implements the deterministic scenario translator: a
// keyword-based extractor that turns free-form English into a structured
// Order Request when no language model is configured, or as the fallback
// path when one is.
package translate

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/fixharness/engine/internal/external"
	"github.com/fixharness/engine/internal/message"
)

// symbolAliases maps a case-insensitive word to its ticker. Direct tickers
// map to themselves so "AAPL" and "apple" both resolve.
var symbolAliases = map[string]string{
	"aapl":      "AAPL",
	"apple":     "AAPL",
	"goog":      "GOOG",
	"google":    "GOOG",
	"msft":      "MSFT",
	"microsoft": "MSFT",
	"tsla":      "TSLA",
	"tesla":     "TSLA",
	"amzn":      "AMZN",
	"amazon":    "AMZN",
}

const (
	defaultQuantity = 100
	defaultPrice    = 100.0
	unknownSymbol   = "UNKNOWN"
)

var (
	sellRe     = regexp.MustCompile(`(?i)\b(sell|short)\b`)
	limitRe    = regexp.MustCompile(`(?i)\blimit\b`)
	stopRe     = regexp.MustCompile(`(?i)\bstop\b`)
	atCloseRe  = regexp.MustCompile(`(?i)\b(close|moc)\b`)
	gtcRe      = regexp.MustCompile(`(?i)\bgtc\b`)
	iocRe      = regexp.MustCompile(`(?i)\b(ioc|immediate)\b`)
	rejectRe   = regexp.MustCompile(`(?i)\b(reject|fat-finger|fat finger)\b`)
	fillRe     = regexp.MustCompile(`(?i)\bfill\b`)
	quantityRe = regexp.MustCompile(`(?i)\b(\d{1,7})\s*(?:share|shares|unit|units|lot|lots)?\b`)
	priceRe    = regexp.MustCompile(`(?i)(?:\bat\b|@|\bprice\b)\s+(\d+(?:\.\d+)?)`)
	wordRe     = regexp.MustCompile(`[A-Za-z]+`)
)

// Translate maps free-form scenario text to an Order Request through a
// fixed keyword rule table, evaluated in a documented order: side, type,
// time-in-force, symbol, quantity, price, expected outcome. Identical
// input always produces an identical result: no I/O, no randomness.
func Translate(text string) (message.OrderRequest, error) {
	side := message.SideBuy
	if sellRe.MatchString(text) {
		side = message.SideSell
	}

	orderType := message.TypeMarket
	switch {
	case limitRe.MatchString(text):
		orderType = message.TypeLimit
	case stopRe.MatchString(text):
		orderType = message.TypeStop
	}

	tif := message.TIFDay
	switch {
	case atCloseRe.MatchString(text):
		tif = message.TIFAtClose
	case gtcRe.MatchString(text):
		tif = message.TIFGTC
	case iocRe.MatchString(text):
		tif = message.TIFIOC
	}

	symbol := extractSymbol(text)
	quantity := extractQuantity(text)

	b := message.NewOrderBuilder(symbol, quantity).
		Side(side).
		Type(orderType).
		TimeInForce(tif).
		Currency("USD")

	if orderType != message.TypeMarket {
		b.Price(extractPrice(text))
	}

	switch {
	case rejectRe.MatchString(text):
		b.ExpectedOutcome(message.OutcomeRejected)
	case fillRe.MatchString(text):
		b.ExpectedOutcome(message.OutcomeFill)
	}

	return b.Build()
}

// normalizationPrompt asks an LLMProvider to restate free-form scenario
// text as a single plain-English order sentence, so the deterministic
// extractor below still has something it recognizes to parse.
const normalizationPrompt = "Restate the following test scenario as one plain-English order instruction " +
	"(side, symbol, quantity, order type, time-in-force, price if any). Return only the sentence."

// TranslateWithLLM normalizes text through provider before running it
// through Translate, when provider is non-nil and reports itself
// available. A nil provider, an unavailable one, or a failed completion
// call all fall back to running Translate directly on the original text,
// matching the package's documented "fallback path when one is
// [configured]" behavior.
func TranslateWithLLM(ctx context.Context, provider external.LLMProvider, text string) (message.OrderRequest, error) {
	if provider != nil && provider.IsAvailable() {
		if normalized, err := provider.Complete(ctx, normalizationPrompt, text); err == nil && strings.TrimSpace(normalized) != "" {
			text = normalized
		}
	}
	return Translate(text)
}

func extractSymbol(text string) string {
	for _, w := range wordRe.FindAllString(text, -1) {
		if ticker, ok := symbolAliases[strings.ToLower(w)]; ok {
			return ticker
		}
	}
	return unknownSymbol
}

func extractQuantity(text string) int {
	m := quantityRe.FindStringSubmatch(text)
	if m == nil {
		return defaultQuantity
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > 9_999_999 {
		return defaultQuantity
	}
	return n
}

func extractPrice(text string) float64 {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return defaultPrice
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return defaultPrice
	}
	return p
}
