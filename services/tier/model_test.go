package tier

import (
	"testing"

	"github.com/ishaamahadeva-India/pompomm/pkg/score"

	"github.com/stretchr/testify/require"
)

func TestTargetTier(t *testing.T) {
	cases := []struct {
		name    string
		current Tier
		crs     float64
		want    Tier
	}{
		{"promote bronze", TierBronze, 85, TierSilver},
		{"promote silver", TierSilver, 92, TierGold},
		{"gold never auto verified", TierGold, 99, TierGold},
		{"verified stays on promote", TierVerified, 90, TierVerified},
		{"maintain", TierSilver, 84.99, TierSilver},
		{"freeze", TierGold, 50, TierGold},
		{"demote gold", TierGold, 49.99, TierSilver},
		{"demote verified to gold", TierVerified, 40, TierGold},
		{"bronze floor on demote", TierBronze, 36, TierBronze},
		{"reset to bronze", TierSilver, 34.99, TierBronze},
		{"reset verified to gold", TierVerified, 0, TierGold},
		{"unknown tier treated as bronze", Tier(""), 90, TierSilver},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, TargetTier(tc.current, score.New(tc.crs)))
		})
	}
}

func TestStepMovesOneRank(t *testing.T) {
	require.Equal(t, TierGold, Step(TierGold, TierBronze))
	require.Equal(t, TierBronze, Step(TierBronze, TierGold))
	require.Equal(t, TierGold, Step(TierGold, TierGold))
	require.Equal(t, TierBronze, Step(TierSilver, TierBronze))
	require.Equal(t, TierGold, Step(TierVerified, TierGold))

	// CRS below the reset band
	low := score.New(10)
	require.Equal(t, TierGold, Step(TierGold, TargetTier(TierGold, low)))
	require.Equal(t, TierBronze, Step(TierSilver, TargetTier(TierSilver, low)))
	require.Equal(t, TierGold, Step(TierVerified, TargetTier(TierVerified, low)))

	for _, current := range []Tier{TierBronze, TierSilver, TierGold, TierVerified} {
		for crs := 0.0; crs <= 100; crs += 2.5 {
			next := Step(current, TargetTier(current, score.New(crs)))
			diff := next.Rank() - current.Rank()
			require.LessOrEqual(t, diff, 1)
			require.GreaterOrEqual(t, diff, -1)
			if current == TierVerified {
				require.GreaterOrEqual(t, next.Rank(), TierGold.Rank())
			}
			if current != TierVerified {
				require.NotEqual(t, TierVerified, next)
			}
		}
	}
}

func TestBandOf(t *testing.T) {
	require.Equal(t, BandPromote, BandOf(score.New(85)))
	require.Equal(t, BandMaintain, BandOf(score.New(70)))
	require.Equal(t, BandFreeze, BandOf(score.New(69.99)))
	require.Equal(t, BandDemote, BandOf(score.New(35)))
	require.Equal(t, BandReset, BandOf(score.New(34.99)))
}
