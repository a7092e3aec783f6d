//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/config"
	"github.com/emergingrobotics/go-hwcval/pkg/kernel"
	"github.com/emergingrobotics/go-hwcval/pkg/replay"
	"github.com/emergingrobotics/go-hwcval/testutil"
)

const panelTrace = "testdata/panel.yaml"

// kernelFactory builds kernels the way the command does, from a config
// file holding only defaults
func kernelFactory(t *testing.T) replay.KernelFactory {
	t.Helper()
	cfg, err := config.Load(testutil.TempFile(t, "hwcval.yaml", []byte("kernel:\n  device: generic\n")))
	require.NoError(t, err)
	cc, err := cfg.ChecksConfig()
	require.NoError(t, err)

	logger := testutil.QuietLogger()
	return func(ctx context.Context) *kernel.Kernel {
		ledgerConfig := *cc
		return kernel.New(ctx, kernel.Options{
			Logger:          logger,
			Ledger:          checks.NewLedger(&ledgerConfig, checks.WithLogger(logger)),
			Timeouts:        cfg.Timeouts(),
			LayerListDepth:  cfg.LayerList.Depth,
			UniversalPlanes: cfg.Kernel.UniversalPlanes,
		})
	}
}

func TestReplayPanelTrace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f, err := os.Open(panelTrace)
	require.NoError(t, err)
	defer f.Close()

	k := kernelFactory(t)(ctx)
	player := replay.NewPlayer(k, testutil.QuietLogger())
	require.NoError(t, player.Run(ctx, f))

	crtc := k.CrtcByDisplay(0)
	require.NotNil(t, crtc)
	assert.Equal(t, uint32(9), crtc.ValidatedFrames(), "the last flip is validated by the next one")

	result, err := k.Shutdown()
	require.NoError(t, err)
	for _, c := range []checks.Check{
		checks.CheckDrmShimFail,
		checks.CheckDrmFbId,
		checks.CheckInvalidCrtc,
		checks.CheckPlaneIdInvalidForCrtc,
		checks.CheckDrmIoctlGemWaitLatency,
	} {
		assert.Zero(t, result.FailCount[c], c.String())
	}

	stats := player.Stats()
	assert.Equal(t, 11, stats.LogLines)
	assert.Equal(t, 11, stats.Matched)
}

func TestReplayAllMergesTraces(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("op: gem_wait\nfd: 3\nbo: 1\nstatus: -62\n"), 0o644))

	result, err := replay.RunAll(ctx, []string{panelTrace, panelTrace, bad}, kernelFactory(t), testutil.QuietLogger())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), result.FailCount[checks.CheckDrmIoctlGemWaitLatency])
	assert.True(t, result.IsGlobalFail())
}

func TestReplayStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := replay.RunAll(ctx, []string{panelTrace}, kernelFactory(t), testutil.QuietLogger())
	assert.ErrorIs(t, err, context.Canceled)
}
