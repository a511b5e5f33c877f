package sentiment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/atlas-desktop/trading-backend/internal/sentiment"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestExtractScorePrefersScoreLine(t *testing.T) {
	got := sentiment.ExtractScore("some chatter SCORE: 0.73 trailing text")
	want := decimal.NewFromFloat(0.73)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestExtractScoreClampsToUnitRange(t *testing.T) {
	got := sentiment.ExtractScore("SCORE: 4.2")
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected clamp to 1, got %s", got)
	}
}

func TestExtractScoreFallsBackToBareDecimal(t *testing.T) {
	got := sentiment.ExtractScore("regime looks like -0.65 given the data")
	if !got.Equal(decimal.NewFromFloat(-0.65)) {
		t.Errorf("got %s", got)
	}
}

func TestExtractScoreFallsBackToKeywordLadder(t *testing.T) {
	got := sentiment.ExtractScore("market looks bullish and optimistic with upward strength")
	if got.LessThanOrEqual(decimal.Zero) {
		t.Errorf("expected a positive keyword-derived score, got %s", got)
	}
}

func TestCombinedBiasThresholds(t *testing.T) {
	if d := sentiment.CombinedBias(decimal.NewFromFloat(0.3)); d != types.DirectionLong {
		t.Errorf("expected LONG, got %s", d)
	}
	if d := sentiment.CombinedBias(decimal.NewFromFloat(-0.3)); d != types.DirectionShort {
		t.Errorf("expected SHORT, got %s", d)
	}
	if d := sentiment.CombinedBias(decimal.Zero); d != types.DirectionNeutral {
		t.Errorf("expected NEUTRAL, got %s", d)
	}
}

func TestClassifyRegimeBandEdges(t *testing.T) {
	cases := []struct {
		score float64
		want  types.Regime
	}{
		{0.7, types.RegimeStrongBull},
		{0.3, types.RegimeMildBull},
		{0.0, types.RegimeRanging},
		{-0.3, types.RegimeMildBear},
		{-0.7, types.RegimeStrongBear},
	}
	for _, c := range cases {
		got := sentiment.ClassifyRegime(decimal.NewFromFloat(c.score))
		if got != c.want {
			t.Errorf("score %.2f: got %s, want %s", c.score, got, c.want)
		}
	}
}

type stubOracle struct {
	resp string
	err  error
}

func (s stubOracle) Query(ctx context.Context, prompt string) (string, error) { return s.resp, s.err }

func TestMacroBiasFallsBackToNeutralWithNoCache(t *testing.T) {
	a := sentiment.NewAnalyzer(zap.NewNop(), stubOracle{err: errors.New("timeout")}, 0)
	bias := a.MacroBias(context.Background(), "BTC", "prompt")
	if bias.Direction != types.DirectionNeutral {
		t.Errorf("expected NEUTRAL fallback, got %s", bias.Direction)
	}
}

func TestMacroBiasCachesLastGoodResult(t *testing.T) {
	oracle := &stubOracle{resp: "SCORE: 0.5"}
	a := sentiment.NewAnalyzer(zap.NewNop(), oracle, 0)
	first := a.MacroBias(context.Background(), "BTC", "prompt")
	if first.Direction != types.DirectionLong {
		t.Fatalf("expected LONG from first query, got %s", first.Direction)
	}

	oracle.resp, oracle.err = "", errors.New("down")
	second := a.MacroBias(context.Background(), "BTC", "prompt")
	if second.Direction != types.DirectionLong {
		t.Errorf("expected the cached LONG after the oracle failed, got %s", second.Direction)
	}
}
