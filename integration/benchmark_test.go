//go:build benchmark

package integration

import (
	"bytes"
	"context"
	"image"
	"os"
	"testing"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/compare"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/kernel"
	"github.com/emergingrobotics/go-hwcval/pkg/logparse"
	"github.com/emergingrobotics/go-hwcval/pkg/replay"
	"github.com/emergingrobotics/go-hwcval/testutil"
)

// BenchmarkReplayPanelTrace measures a full replay of the panel trace
func BenchmarkReplayPanelTrace(b *testing.B) {
	trace, err := os.ReadFile("testdata/panel.yaml")
	if err != nil {
		b.Fatal(err)
	}
	logger := testutil.QuietLogger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ledger := checks.NewLedger(nil, checks.WithLogger(logger))
		k := kernel.New(context.Background(), kernel.Options{
			Logger:          logger,
			Ledger:          ledger,
			Clock:           testutil.NewFakeClock(),
			Device:          display.DeviceGeneric,
			UniversalPlanes: true,
		})
		if err := replay.Run(context.Background(), k, bytes.NewReader(trace)); err != nil {
			b.Fatal(err)
		}
		if _, err := k.Shutdown(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParseLogLine measures matching one page flip line against every
// matcher
func BenchmarkParseLogLine(b *testing.B) {
	p := logparse.NewParser(testutil.QuietLogger())
	line := "DrmPageFlip Crtc 1 issuing drm updates for frame:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := p.Parse(line); !ok {
			b.Fatal("line not matched")
		}
	}
}

// BenchmarkSSIM measures one full-frame structural similarity comparison
func BenchmarkSSIM(b *testing.B) {
	a := testutil.MakeTestImage(640, 480, 255)
	c := testutil.MakeTestImage(640, 480, 200)
	cmp := compare.New()
	r := image.Rect(0, 0, 640, 480)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cmp.SSIM(a, c, r, false)
	}
	b.ReportMetric(float64(640*480*b.N)/b.Elapsed().Seconds(), "px/s")
}
