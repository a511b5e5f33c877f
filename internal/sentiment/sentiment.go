// Package sentiment implements the text-scoring extraction ladder used
// to turn an external oracle's free-text response into a bounded
// directional score. The oracle call itself is an injected interface
// (an external collaborator per the system's scope); this package only
// owns parsing, caching, and threshold logic, which is directly
// testable independent of any network call.
package sentiment

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	scoreLineRe  = regexp.MustCompile(`(?i)SCORE:\s*(-?\d+(\.\d+)?)`)
	bareDecimalRe = regexp.MustCompile(`-?\d+\.\d+`)

	bullishWords = []string{"bullish", "optimistic", "positive", "upward", "rally", "strength"}
	bearishWords = []string{"bearish", "pessimistic", "negative", "downward", "decline", "weak"}

	uselessPhrases = []string{
		"i cannot", "i can't", "i don't have", "unable to provide",
		"no data available", "as an ai", "i do not have access",
	}
)

// Oracle is the external text-scoring collaborator.
type Oracle interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// Analyzer extracts directional bias from oracle responses and caches
// per-symbol results for a TTL window so a flaky oracle degrades
// gracefully rather than stalling the trading loop.
type Analyzer struct {
	logger *zap.Logger
	oracle Oracle
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cachedBias
}

type cachedBias struct {
	bias types.MacroBias
	at   time.Time
}

// NewAnalyzer constructs an Analyzer with the given cache TTL
// (defaults to 60 minutes per SPEC_FULL.md §4.10 when ttl <= 0).
func NewAnalyzer(logger *zap.Logger, oracle Oracle, ttl time.Duration) *Analyzer {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &Analyzer{logger: logger, oracle: oracle, ttl: ttl, cache: map[string]cachedBias{}}
}

// MacroBias returns the cached or freshly-queried directional bias for
// a symbol. On oracle failure or a stale/useless response, a fresh-
// enough cached value is returned; absent that, NEUTRAL.
func (a *Analyzer) MacroBias(ctx context.Context, symbol, prompt string) types.MacroBias {
	resp, err := a.oracle.Query(ctx, prompt)
	if err != nil || IsUselessResponse(resp) {
		if err != nil {
			a.logger.Warn("sentiment oracle query failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return a.cachedOrNeutral(symbol)
	}

	score := ExtractScore(resp)
	bias := types.MacroBias{Score: score, Direction: CombinedBias(score)}

	a.mu.Lock()
	a.cache[symbol] = cachedBias{bias: bias, at: time.Now()}
	a.mu.Unlock()
	return bias
}

func (a *Analyzer) cachedOrNeutral(symbol string) types.MacroBias {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.cache[symbol]; ok && time.Since(c.at) < a.ttl {
		return c.bias
	}
	return types.MacroBias{Direction: types.DirectionNeutral, Score: decimal.Zero}
}

// IsUselessResponse reports whether the oracle's text is a refusal or
// non-answer.
func IsUselessResponse(resp string) bool {
	lower := strings.ToLower(resp)
	for _, phrase := range uselessPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return strings.TrimSpace(resp) == ""
}

// ExtractScore parses a regime/bias score from oracle text using a
// three-tier ladder: an explicit "SCORE: <num>" line (last match
// wins), then a bare signed-decimal, then a keyword-count ladder
// mapped to {+/-0.2, +/-0.4, +/-0.6}. The result is clamped to
// [-1, 1].
func ExtractScore(resp string) decimal.Decimal {
	if matches := scoreLineRe.FindAllStringSubmatch(resp, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		if f, err := strconv.ParseFloat(last[1], 64); err == nil {
			return clamp(decimal.NewFromFloat(f))
		}
	}

	if matches := bareDecimalRe.FindAllString(resp, -1); len(matches) > 0 {
		if f, err := strconv.ParseFloat(matches[len(matches)-1], 64); err == nil {
			return clamp(decimal.NewFromFloat(f))
		}
	}

	lower := strings.ToLower(resp)
	bullCount := countWords(lower, bullishWords)
	bearCount := countWords(lower, bearishWords)
	diff := bullCount - bearCount

	switch {
	case diff >= 3:
		return decimal.NewFromFloat(0.6)
	case diff == 2:
		return decimal.NewFromFloat(0.4)
	case diff == 1:
		return decimal.NewFromFloat(0.2)
	case diff == -1:
		return decimal.NewFromFloat(-0.2)
	case diff == -2:
		return decimal.NewFromFloat(-0.4)
	case diff <= -3:
		return decimal.NewFromFloat(-0.6)
	default:
		return decimal.Zero
	}
}

func countWords(text string, words []string) int {
	count := 0
	for _, w := range words {
		count += strings.Count(text, w)
	}
	return count
}

func clamp(v decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if v.GreaterThan(one) {
		return one
	}
	if v.LessThan(one.Neg()) {
		return one.Neg()
	}
	return v
}

// CombinedBias maps a score to a direction at the +/-0.25 thresholds.
func CombinedBias(score decimal.Decimal) types.Direction {
	threshold := decimal.NewFromFloat(0.25)
	switch {
	case score.GreaterThan(threshold):
		return types.DirectionLong
	case score.LessThan(threshold.Neg()):
		return types.DirectionShort
	default:
		return types.DirectionNeutral
	}
}

// ClassifyRegime maps a regime score to the five-way regime enum at
// the +/-0.2 and +/-0.5 band edges.
func ClassifyRegime(score decimal.Decimal) types.Regime {
	strong := decimal.NewFromFloat(0.5)
	mild := decimal.NewFromFloat(0.2)
	switch {
	case score.GreaterThan(strong):
		return types.RegimeStrongBull
	case score.GreaterThan(mild):
		return types.RegimeMildBull
	case score.LessThan(strong.Neg()):
		return types.RegimeStrongBear
	case score.LessThan(mild.Neg()):
		return types.RegimeMildBear
	default:
		return types.RegimeRanging
	}
}
