package display

import (
	"time"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

func bufferOf(t transform.Transform) *buffer.Buffer {
	b, _ := t.Buf.(*buffer.Buffer)
	return b
}

// ConsistencyChecks matches the transforms actually on screen, back to
// front, against the layers of ll. Each layer should appear in order; layers
// missing from the screen, layers out of order, buffers on screen that no
// layer asked for and geometry mismatches are all reported.
func (c *Crtc) ConsistencyChecks(ll *layerlist.List, k Kernel, hwcFrame uint32) {
	c.videoLayerIndex = -1
	var (
		counts      transform.ErrorCounts
		logPriority checks.Priority
	)
	defer func() {
		if logPriority > 0 {
			c.logTransforms(logPriority, hwcFrame)
		}
	}()

	// No fences have signalled yet on frame 0
	if hwcFrame == 0 {
		return
	}
	if c.skipAllLayers {
		c.logger.Info("rotation animation in progress, skipping checks",
			"display", c.displayIx, "frame", hwcFrame)
		return
	}
	if !c.BlankingChecks(ll, hwcFrame) {
		return
	}

	switch {
	case ll.NumLayers() == 1 && len(c.transforms) == 1:
		c.logger.Info("nothing to put on display, target is probably blank",
			"display", c.displayIx, "buffer", bufferOf(c.transforms[0]))
		return
	case len(c.transforms) == 0:
		return
	}

	if !c.IsEsdRecoveryMode() {
		c.rec.IncEval(checks.CheckDisabledDisplayBlanked)
		if !c.IsDisplayEnabled() && c.IsBlankingRequested() {
			c.rec.Report(checks.CheckDisabledDisplayBlanked,
				"CRTC %d was disabled but not blanked. DPMS=%t DISP_SCREEN_CONTROL=%t (frame:%d)",
				c.id, c.power.DPMS, c.power.DispScreenControl, hwcFrame)
			return
		}
	}

	cursor := 0
	for i, layer := range ll.Layers {
		buf := layer.Buf
		if buf == nil || layer.IsSkip() {
			continue
		}
		if c.videoLayerIndex < 0 && buf.IsVideoFormat() {
			c.setVideoLayer(i, layer.Geometry.DisplayFrame)
		}

		// Composition targets and blanking buffers are never matched
		// positionally
		for cursor < len(c.transforms) {
			b := bufferOf(c.transforms[cursor])
			if b == nil || c.transforms[cursor].LayerIndex != transform.NoLayer || !(b.IsFbt() || b.IsBlanking()) {
				break
			}
			cursor++
		}

		c.rec.IncEval(checks.CheckLayerDisplay)
		var at *transform.Transform
		if cursor < len(c.transforms) {
			at = &c.transforms[cursor]
		}

		if !layer.Validity.IsValid() {
			if at != nil && at.LayerIndex == transform.NoLayer && bufferOf(*at) != nil &&
				bufferOf(*at).IsBlack() && bufferOf(*at).IsFbt() {
				// Invalid protected content correctly shown as black
				requested := transform.Combine(transform.FromLayer(buf, uint32(i), layer.Geometry), c.scaleT, c.rec)
				actual := transform.Combine(*at, c.cropT, c.rec)
				requested.CompareDf(actual, transform.FromLayer(buf, uint32(i), layer.Geometry), c.displayIx, &counts, c.rec)
				at.LayerIndex = i
				cursor++
			} else if at != nil && bufferOf(*at) == buf {
				if at.IsFromSfComp() {
					c.logger.Warn("invalid layer was composed by SF, will be black",
						"display", c.displayIx, "layer", i, "buffer", buf)
				}
				at.LayerIndex = i
				cursor++
			}
			continue
		}

		if at != nil && bufferOf(*at) != nil && bufferOf(*at).IsBlack() && bufferOf(*at) != buf {
			// Valid content the composer chose to show as black
			at.LayerIndex = i
			cursor++
			continue
		}

		matched := -1
		if at != nil && bufferOf(*at) == buf && at.LayerIndex == transform.NoLayer {
			matched = cursor
			cursor++
		} else {
			found := -1
			for j := range c.transforms {
				if bufferOf(c.transforms[j]) == buf && c.transforms[j].LayerIndex == transform.NoLayer {
					found = j
					break
				}
			}

			c.rec.IncEval(checks.CheckLayerOrder)
			switch {
			case layer.Composition == layerlist.CompositionTarget:
				// A target whose constituents were all skip layers can reach
				// the screen unexpanded
				if found >= 0 {
					c.transforms[found].LayerIndex = i
				}
				continue

			case found < 0:
				if p := c.missingLayer(ll, i); p > logPriority {
					logPriority = p
				}
				continue

			case found < cursor:
				if p := c.rec.Report(checks.CheckLayerOrder, "D%d Layer %d %s is ON SCREEN P%d TOO FAR BACK",
					c.sfSrcDisp, i, buf, c.displayIx); p > logPriority {
					logPriority = p
				}
				matched = found

			default:
				c.logger.Warn("layer is on screen too far forward",
					"display", c.sfSrcDisp, "layer", i, "buffer", buf, "physical", c.displayIx)
				matched = found
				cursor = found + 1
			}
		}

		tr := &c.transforms[matched]
		tr.LayerIndex = i

		// Rotation animations perturb coordinates to hold the previous frame
		if !k.IsRotationInProgress(hwcFrame) {
			requested := transform.Cropped(buf, uint32(i), layer.Geometry, layer.Visible,
				int32(c.width), int32(c.height), c.scaleT, c.rec)
			actual := transform.Combine(*tr, c.cropT, c.rec)
			requested.Compare(actual, transform.FromLayer(buf, uint32(i), layer.Geometry),
				c.displayIx, hwcFrame, &counts, c.rec)
		}
	}

	c.rec.IncEval(checks.CheckPlaneCrop)
	if counts.Crop > 0 {
		c.rec.Report(checks.CheckPlaneCrop, "%d cropping inconsistencies on P%d frame:%d",
			counts.Crop, c.displayIx, hwcFrame)
	}
	c.rec.IncEval(checks.CheckPlaneScale)
	if counts.Scale > 0 {
		c.rec.Report(checks.CheckPlaneScale, "%d scaling inconsistencies on P%d frame:%d",
			counts.Scale, c.displayIx, hwcFrame)
	}

	if c.droppedFrame {
		return
	}

	skipped := make(map[*buffer.Buffer]bool)
	for _, layer := range ll.Layers {
		if layer.Buf != nil && layer.IsSkip() {
			skipped[layer.Buf] = true
		}
	}

	for _, tr := range c.transforms {
		c.rec.IncEval(checks.CheckLayerDisplay)
		buf := bufferOf(tr)
		if tr.LayerIndex != transform.NoLayer || buf == nil || buf.IsBlanking() {
			continue
		}
		if k.IsSnapshot(buf.Handle(), hwcFrame) {
			continue
		}
		check := checks.CheckLayerDisplay
		switch {
		case skipped[buf] && tr.IsFromSfComp():
			// Skip layers reach the screen through the target
			continue
		case skipped[buf], buf.IsFbt():
			check = checks.CheckSkipLayerUsage
		}
		if p := c.rec.Report(check, "D%d P%d %s IS MAPPED TO SCREEN WHEN NOT REQUESTED",
			c.sfSrcDisp, c.displayIx, buf); p > logPriority {
			logPriority = p
		}
	}
}

// missingLayer decides whether layer i's absence from the screen is
// legitimate, reporting it if not
func (c *Crtc) missingLayer(ll *layerlist.List, i int) checks.Priority {
	layer := ll.Layers[i]
	buf := layer.Buf

	// The composer may show only a blanking buffer at first
	if c.validatedFrames < 2 {
		return 0
	}

	if c.videoLayerIndex >= 0 && i > c.videoLayerIndex {
		inSource := transform.InverseTransformRect(c.videoDF, layer.Geometry)
		if buf.IsBufferTransparent(inSource, c.env.Cmp, c.rec) {
			c.logger.Info("buffer discarded by transparency filter", "buffer", buf)
			return 0
		}
	}

	if layer.VisibleBounds().Empty() {
		return 0
	}

	cropped := transform.Cropped(buf, uint32(i), layer.Geometry, layer.Visible,
		int32(c.width), int32(c.height), c.scaleT, c.rec)
	if !cropped.IsDfIntersecting(int32(c.width), int32(c.height)) {
		c.logger.Debug("layer not visible on physical display",
			"display", c.sfSrcDisp, "layer", i, "physical", c.displayIx)
		return 0
	}

	check := checks.CheckLayerDisplay
	if buf.IsActuallyTransparent() {
		check = checks.CheckTransparencyDetectionFailure
	}
	return c.rec.Report(check, "D%d Layer %d %s NOT MAPPED TO P%d WHEN REQUESTED",
		c.sfSrcDisp, i, buf, c.displayIx)
}

// BlankingChecks checks unblanking latency and unexpected blanking. It
// returns false when the display has just been unblanked, since buffers may
// have cycled by the time the frame is checked.
func (c *Crtc) BlankingChecks(ll *layerlist.List, hwcFrame uint32) bool {
	if c.power.HasContent {
		if (c.power.Black || !c.powerSinceUnbl.DPMS) && c.power.DPMS && !c.unblankingTime.IsZero() {
			latency := c.env.Clock.Now().Sub(c.unblankingTime)
			if latency > c.env.Timeouts.Unblanking {
				c.rec.Report(checks.CheckUnblankingLatency, "Unblanking CRTC %d took %fms (limit %dms)",
					c.id, float64(latency.Microseconds())/1000, c.env.Timeouts.Unblanking.Milliseconds())
			}
			c.unblankingTime = time.Time{}
			c.powerSinceUnbl = c.power
			return false
		}
	} else {
		c.unblankingTime = time.Time{}
	}

	if !c.WasBlankingRequested() && c.power.Black && c.power.HasContent &&
		ll.NumLayers() > 1 && c.power.DPMS && len(c.transforms) == 0 {
		c.rec.Report(checks.CheckLayerDisplay, "CRTC %d was blanked for no apparent reason (frame:%d)",
			c.id, hwcFrame)
	}

	c.SetDisplayIsBlack(len(c.transforms), ll.NumLayers())
	return true
}

func (c *Crtc) logTransforms(priority checks.Priority, hwcFrame uint32) {
	c.rec.Logf(priority, "Actual display list for CRTC %d frame:%d:", c.id, hwcFrame)
	for i, tr := range c.transforms {
		c.rec.Logf(priority, "%2d %s", i, tr)
	}
}
