//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/kernel"
	"github.com/emergingrobotics/go-hwcval/testutil"
)

func TestScanFindsDevice(t *testing.T) {
	path := testutil.SkipIfNoDevice(t)

	cards, err := drm.Scan()
	require.NoError(t, err)
	found := false
	for _, c := range cards {
		if c.Path == path {
			found = true
		}
	}
	assert.True(t, found, "scan should report %s", path)
}

func TestLiveQueriesPassChecks(t *testing.T) {
	path := testutil.SkipIfNoDevice(t)

	dev, err := drm.OpenDevice(path)
	if err != nil {
		t.Skipf("cannot open %s: %v", path, err)
	}
	defer dev.Close()

	res, err := dev.GetResources()
	if err != nil {
		t.Skipf("%s is not a KMS device: %v", path, err)
	}
	require.NotEmpty(t, res.Crtcs)

	logger := testutil.QuietLogger()
	ledger := checks.NewLedger(nil, checks.WithLogger(logger))
	ledger.Configure(func(c *checks.Config) { c.Initialise(true, true, true, true, false) })
	k := kernel.New(context.Background(), kernel.Options{Logger: logger, Ledger: ledger, UniversalPlanes: true})

	k.CheckGetResourcesExit(res.Crtcs)
	planes, err := dev.GetPlaneResources()
	require.NoError(t, err)
	k.CheckGetPlaneResourcesExit(planes)
	for _, id := range planes {
		p, err := dev.GetPlane(id)
		require.NoError(t, err)
		assert.NotZero(t, p.PossibleCrtcs, "plane %d", id)
		k.CheckGetPlaneExit(p, drm.PlaneTypeOverlay)
	}
	for _, id := range res.Connectors {
		c, err := dev.GetConnector(id)
		require.NoError(t, err)
		k.CheckGetConnectorExit(c)
	}

	result, err := k.Shutdown()
	require.NoError(t, err)
	assert.Zero(t, result.FailCount[checks.CheckDrmShimFail])
}
