package featureflags

import (
	"context"
	"testing"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestUnconfiguredClientUsesFallback(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})
	require.True(t, ff.Enabled(context.Background(), AutoTierSystem, true))
	require.False(t, ff.Enabled(context.Background(), AutoTierSystem, false))
}

func TestStatic(t *testing.T) {
	ff := Static{AutoTierSystem: false}
	require.False(t, ff.Enabled(context.Background(), AutoTierSystem, true))
	require.True(t, ff.Enabled(context.Background(), "unknown", true))
}
