package kernel

import (
	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/logparse"
)

// HandleEvent applies an event recognised in the compositor's log
func (k *Kernel) HandleEvent(ev logparse.Event) {
	switch e := ev.(type) {
	case logparse.PageFlipUpdates:
		k.ValidateFrame(e.Crtc, e.Frame)
	case logparse.ReleaseTo:
		k.ValidateDrmReleaseTo(e.Connector)
	case logparse.EsdEvent:
		k.ValidateEsdRecovery(e.Display)
	case logparse.DisplayMapped:
		k.ValidateDisplayMapping(e.Connector, e.Crtc)
	case logparse.DisplayUnmapped:
		k.ValidateDisplayUnmapping(e.Crtc)
	case logparse.FrameDropped:
		k.RecordDroppedFrame(e)
	case logparse.BufferFreed:
		k.CheckBufferFree(buffer.Handle(e.Handle))
	case logparse.Composition:
		k.SetComposition(e.Composer)
	case logparse.Snapshot:
		k.SetSnapshot(buffer.Handle(e.Handle), e.KeepCount)
	case logparse.Option:
		if e.Forced {
			k.logger.Info("compositor option forced", "name", e.Name, "value", e.Value)
		}
		k.SetHwcOption(e.Name, e.Value)
	case logparse.SelfTeardown, logparse.HotPlugToHotpluggable:
		k.logger.Info("compositor event", "event", ev.String())
	default:
		k.logger.Debug("unhandled event", "event", ev.String())
	}
}
