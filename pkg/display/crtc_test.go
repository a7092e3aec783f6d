//go:build unit

package display

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
	"github.com/emergingrobotics/go-hwcval/testutil"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newLedger() *checks.Ledger {
	l := checks.NewLedger(nil, checks.WithLogger(quiet()))
	l.Configure(func(c *checks.Config) { c.Initialise(true, true, true, true, false) })
	return l
}

func newTestCrtc(t *testing.T, device Device) (*Crtc, *checks.Ledger, *testutil.FakeClock) {
	t.Helper()
	ledger := newLedger()
	clock := testutil.NewFakeClock()
	c := NewCrtc(5, &Env{
		Rec:    ledger,
		Logger: quiet(),
		Clock:  clock,
		Cmp:    testutil.NewFakeComparator(),
		Device: device,
	})
	c.SetDimensions(1920, 1080, 0, 60)
	return c, ledger, clock
}

func newBuf(handle buffer.Handle, format uint32, w, h uint32) *buffer.Buffer {
	b := buffer.New(handle, transform.SourceInput)
	b.SetMeta(buffer.Meta{Width: w, Height: h, Format: format})
	return b
}

type fakeKernel struct {
	rotating    bool
	snapshot    buffer.Handle
	stable      bool
	offRequired bool
	offAllowed  bool
	expect      checks.PanelMode
}

func (k *fakeKernel) IsRotationInProgress(uint32) bool { return k.rotating }
func (k *fakeKernel) IsSnapshot(h buffer.Handle, _ uint32) bool {
	return k.snapshot != 0 && h == k.snapshot
}
func (k *fakeKernel) IsExtendedModeStable() bool         { return k.stable }
func (k *fakeKernel) IsEMPanelOffRequired() bool         { return k.offRequired }
func (k *fakeKernel) IsEMPanelOffAllowed() bool          { return k.offAllowed }
func (k *fakeKernel) StableModeExpect() checks.PanelMode { return k.expect }

func fullScreen(buf *buffer.Buffer) layerlist.Layer {
	return layerlist.Layer{
		Buf:         buf,
		Composition: layerlist.CompositionHWC,
		Geometry: transform.Geometry{
			SourceCrop:   transform.RectF{Right: float64(buf.Width()), Bottom: float64(buf.Height())},
			DisplayFrame: transform.Rect{Right: int32(buf.Width()), Bottom: int32(buf.Height())},
			PlaneAlpha:   1,
		},
		Validity: layerlist.Valid,
	}
}

func TestNewCrtcDefaults(t *testing.T) {
	c, _, _ := newTestCrtc(t, DeviceBroxton)

	assert.Equal(t, uint32(5), c.ID())
	assert.Equal(t, NoDisplay, c.DisplayIx())
	assert.False(t, c.IsConnectedDisplay())
	assert.True(t, c.IsDisplayEnabled())
	assert.True(t, c.IsBehavingAsConnected())
	assert.Equal(t, EsdComplete, c.EsdState())
	assert.Equal(t, "Set Display watchdog Crtc 5", c.setDisplayWD.Name())

	c.SetID(9)
	assert.Equal(t, "DPMS watchdog Crtc 9", c.dpmsWD.Name())
}

func TestDPMSWatchdog(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		fails   uint32
	}{
		{"completes in time", 14900 * time.Millisecond, 0},
		{"locks up", 15100 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, clock := newTestCrtc(t, DeviceBroxton)

			c.SetDPMSInProgress(true)
			require.True(t, c.IsDPMSInProgress())
			clock.Advance(tt.elapsed)
			c.SetDPMSInProgress(false)

			assert.False(t, c.IsDPMSInProgress())
			assert.Equal(t, uint32(1), ledger.EvalCount(checks.CheckDPMSLockup))
			if got := ledger.FailCount(checks.CheckDPMSLockup); got != tt.fails {
				t.Errorf("FailCount(DPMSLockup) = %d, expected %d", got, tt.fails)
			}
		})
	}
}

func TestWatchdogRestart(t *testing.T) {
	ledger := newLedger()
	clock := testutil.NewFakeClock()
	wd := NewWatchdog("test", 50*time.Millisecond, checks.CheckTimelyPageFlip, ledger, clock)

	wd.Start()
	clock.Advance(40 * time.Millisecond)
	wd.Start()
	clock.Advance(40 * time.Millisecond)
	assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckTimelyPageFlip))
	assert.True(t, wd.Running())

	clock.Advance(20 * time.Millisecond)
	assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckTimelyPageFlip))
	assert.False(t, wd.Running())
	assert.Equal(t, 0, clock.Pending())
}

func TestVBlankWatchdog(t *testing.T) {
	c, ledger, clock := newTestCrtc(t, DeviceBroxton)

	c.VBlankRequested()
	assert.True(t, c.IsVBlankActive())
	clock.Advance(10 * time.Millisecond)
	c.VBlank(0)
	assert.False(t, c.IsVBlankActive())
	assert.Equal(t, uint32(1), c.Frame())

	c.VBlankRequested()
	clock.Advance(time.Second)
	assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckDispGeneratesVSync))
}

func TestEsdRecovery(t *testing.T) {
	tests := []struct {
		name  string
		took  time.Duration
		fails uint32
	}{
		{"quick", time.Second, 0},
		{"slow", 4 * time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, clock := newTestCrtc(t, DeviceBroxton)

			c.MarkEsdRecoveryStart()
			require.True(t, c.EsdStateTransition(EsdComplete, EsdStarted))
			assert.True(t, c.IsEsdRecoveryMode())

			c.SetDPMSEnabled(false)
			assert.Equal(t, EsdDpmsOff, c.EsdState())
			assert.False(t, c.EsdStateTransition(EsdStarted, EsdModeSet))
			require.True(t, c.EsdStateTransition(EsdDpmsOff, EsdModeSet))

			clock.Advance(tt.took)
			c.SetDPMSEnabled(true)

			assert.Equal(t, EsdComplete, c.EsdState())
			assert.False(t, c.IsEsdRecoveryMode())
			assert.Equal(t, tt.fails, ledger.FailCount(checks.CheckEsdRecovery))
		})
	}
}

func TestEsdStateTransitionRejectsIllegalMoves(t *testing.T) {
	tests := []struct {
		name     string
		start    []EsdState
		from, to EsdState
		ok       bool
		want     EsdState
	}{
		{"any to started", nil, EsdAny, EsdStarted, true, EsdStarted},
		{"complete to started", nil, EsdComplete, EsdStarted, true, EsdStarted},
		{"any to complete", nil, EsdAny, EsdComplete, false, EsdComplete},
		{"complete to mode set", nil, EsdComplete, EsdModeSet, false, EsdComplete},
		{"complete to dpms off", nil, EsdComplete, EsdDpmsOff, false, EsdComplete},
		{"started to mode set", []EsdState{EsdStarted}, EsdStarted, EsdModeSet, false, EsdStarted},
		{"started to complete", []EsdState{EsdStarted}, EsdStarted, EsdComplete, false, EsdStarted},
		{"dpms off to complete", []EsdState{EsdStarted, EsdDpmsOff}, EsdDpmsOff, EsdComplete, false, EsdDpmsOff},
		{"any to mode set", []EsdState{EsdStarted, EsdDpmsOff}, EsdAny, EsdModeSet, false, EsdDpmsOff},
		{"to any", nil, EsdComplete, EsdAny, false, EsdComplete},
		{"mode set to complete", []EsdState{EsdStarted, EsdDpmsOff, EsdModeSet}, EsdModeSet, EsdComplete, true, EsdComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestCrtc(t, DeviceBroxton)
			prev := EsdAny
			for _, s := range tt.start {
				require.True(t, c.EsdStateTransition(prev, s), "setting up %s", s)
				prev = s
			}

			if got := c.EsdStateTransition(tt.from, tt.to); got != tt.ok {
				t.Errorf("EsdStateTransition(%s, %s) = %v, expected %v", tt.from, tt.to, got, tt.ok)
			}
			assert.Equal(t, tt.want, c.EsdState())
		})
	}
}

func TestDroppedFrames(t *testing.T) {
	c, _, _ := newTestCrtc(t, DeviceBroxton)

	// Dropped frames straight after DPMS are expected
	c.RecordDroppedFrames(3)
	dropped, maxRun := c.DroppedFrameCounts(false)
	assert.Equal(t, uint32(0), dropped)
	assert.Equal(t, uint32(0), maxRun)

	for i := 0; i < 3; i++ {
		c.PageFlipsSinceDPMS()
	}
	c.RecordDroppedFrames(2)
	c.SetDroppedFrame()
	c.clearDrawnList()
	c.clearDrawnList()

	dropped, maxRun = c.DroppedFrameCounts(true)
	assert.Equal(t, uint32(3), dropped)
	assert.Equal(t, uint32(3), maxRun)

	dropped, maxRun = c.DroppedFrameCounts(false)
	assert.Equal(t, uint32(0), dropped)
	assert.Equal(t, uint32(0), maxRun)
}

func TestUnblankingLatency(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
		fails   uint32
	}{
		{"within limit", 500 * time.Millisecond, 0},
		{"too slow", 700 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, clock := newTestCrtc(t, DeviceBroxton)
			ll := layerlist.New(2)
			ll.Add(fullScreen(newBuf(1, drm.FormatXRGB8888, 1920, 1080)))
			ll.Add(fullScreen(newBuf(2, drm.FormatXRGB8888, 1920, 1080)))

			c.SetDPMSEnabled(false)
			c.SetDisplayIsBlack(0, 2)
			c.SetBlankingRequested(false)
			c.SetDPMSEnabled(true)
			clock.Advance(tt.latency)

			assert.False(t, c.BlankingChecks(ll, 10), "checks should be skipped after unblanking")
			assert.Equal(t, uint32(1), ledger.EvalCount(checks.CheckUnblankingLatency))
			assert.Equal(t, tt.fails, ledger.FailCount(checks.CheckUnblankingLatency))

			// Dealt with: the next frame is checked normally
			assert.True(t, c.BlankingChecks(ll, 11))
		})
	}
}

func TestUnexpectedBlanking(t *testing.T) {
	c, ledger, _ := newTestCrtc(t, DeviceBroxton)
	ll := layerlist.New(2)
	ll.Add(fullScreen(newBuf(1, drm.FormatXRGB8888, 1920, 1080)))
	ll.Add(fullScreen(newBuf(2, drm.FormatXRGB8888, 1920, 1080)))

	c.SetDisplayIsBlack(0, 2)
	assert.True(t, c.BlankingChecks(ll, 3))
	assert.Equal(t, uint32(1), ledger.FailCount(checks.CheckLayerDisplay))

	// Requested blanking is fine
	ledger.Reset()
	c.SetBlankingRequested(true)
	c.SetDisplayIsBlack(0, 2)
	c.SetDisplayIsBlack(0, 2)
	assert.True(t, c.BlankingChecks(ll, 4))
	assert.Equal(t, uint32(0), ledger.FailCount(checks.CheckLayerDisplay))
}

func TestPanelFitterAspectRatio(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
		fails         uint32
	}{
		{"same ratio", 1280, 720, 0},
		{"within 1%", 1280, 725, 0},
		{"distorted", 1280, 1024, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ledger, _ := newTestCrtc(t, DeviceGeneric)
			c.SetPanelFitter(PanelFitterAuto)
			c.SetPanelFitterSourceSize(tt.width, tt.height)

			assert.Equal(t, tt.fails, ledger.FailCount(checks.CheckPanelFitterConstantAspectRatio))
			w, h := c.PanelFitterSourceSize()
			assert.Equal(t, tt.width, w)
			assert.Equal(t, tt.height, h)
		})
	}
}

func TestPanelFitterTransform(t *testing.T) {
	c, _, _ := newTestCrtc(t, DeviceGeneric)
	c.SetPanelFitter(PanelFitterAuto)
	c.SetPanelFitterSourceSize(960, 540)

	pf := c.PanelFitterTransform()
	assert.InDelta(t, 2.0, pf.XScale, 1e-9)
	assert.InDelta(t, 2.0, pf.YScale, 1e-9)

	c.SetPanelFitter(PanelFitterOff)
	assert.False(t, c.IsPanelFitterEnabled())
	w, h := c.PanelFitterSourceSize()
	assert.Equal(t, uint32(1920), w)
	assert.Equal(t, uint32(1080), h)
}
