// Package replay drives a validation kernel from a recorded trace. A trace
// is a stream of YAML documents, one per intercepted call, compositor log
// line or harness action.
package replay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/emergingrobotics/go-hwcval/pkg/buffer"
	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/kernel"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
	"github.com/emergingrobotics/go-hwcval/pkg/logparse"
	"github.com/emergingrobotics/go-hwcval/pkg/transform"
)

// Stats count what a replay applied
type Stats struct {
	Events   int
	LogLines int
	Matched  int
}

// Player applies trace events to one kernel
type Player struct {
	k      *kernel.Kernel
	parser *logparse.Parser
	logger *slog.Logger
	stats  Stats
}

// NewPlayer returns a player driving k. Log lines are parsed with the
// default matchers.
func NewPlayer(k *kernel.Kernel, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		k:      k,
		parser: logparse.NewParser(logger),
		logger: logger,
	}
}

// Stats returns the counts so far
func (p *Player) Stats() Stats { return p.stats }

// Run decodes events from r and applies them in order until EOF, ctx is
// cancelled or an event can not be applied
func (p *Player) Run(ctx context.Context, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	for doc := 1; ; doc++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay stopped at document %d: %w", doc, err)
		}

		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding document %d: %w", doc, err)
		}
		if ev.Op == "" {
			// Empty documents, such as a leading "---", carry nothing
			continue
		}
		if err := p.Apply(ev); err != nil {
			return fmt.Errorf("document %d (%s): %w", doc, ev.Op, err)
		}
	}
}

// Run replays the trace in r against k
func Run(ctx context.Context, k *kernel.Kernel, r io.Reader) error {
	return NewPlayer(k, nil).Run(ctx, r)
}

// Apply applies a single event
func (p *Player) Apply(ev Event) error {
	p.stats.Events++
	k := p.k

	switch ev.Op {
	case OpGetResources:
		k.CheckGetResourcesExit(ev.Crtcs)

	case OpGetPlaneResources:
		k.CheckGetPlaneResourcesExit(ev.Planes)

	case OpGetPlane:
		kind, err := parsePlaneType(ev.Type)
		if err != nil {
			return err
		}
		k.CheckGetPlaneExit(&drm.ModeGetPlane{PlaneID: ev.Plane, PossibleCrtcs: ev.PossibleCrtcs}, kind)

	case OpGetConnector:
		return p.getConnector(ev)

	case OpSetCrtc:
		mode, err := parseModeInfo(ev.Mode, false)
		if err != nil {
			return err
		}
		k.CheckSetCrtcEnter(ev.Crtc, ev.Fb, ev.Connectors, &mode)
		k.CheckSetCrtcExit(ev.Crtc, ev.Status)

	case OpSetPlane:
		sp, err := setPlaneArgs(ev)
		if err != nil {
			return err
		}
		k.CheckSetPlaneEnter(sp)
		k.CheckSetPlaneExit(sp, ev.Status)

	case OpPageFlip:
		k.CheckPageFlipEnter(ev.Crtc, ev.Fb)
		k.CheckPageFlipExit(ev.Crtc, ev.Fb, ev.Status)

	case OpPageFlipEvent:
		k.CheckPageFlipEvent(ev.Crtc)

	case OpAddFB:
		format, err := parseFormat(ev.Format)
		if err != nil {
			return err
		}
		fb := &drm.ModeFbCmd2{FbID: ev.Fb, Width: ev.Width, Height: ev.Height, PixelFormat: format}
		fb.Handles[0] = ev.Bo
		fb.Modifier[0] = ev.Modifier
		if ev.Aux != nil {
			fb.Flags |= drm.FbAuxPlane
			fb.Pitches[1] = ev.Aux.Pitch
			fb.Offsets[1] = ev.Aux.Offset
			fb.Modifier[1] = ev.Aux.Modifier
		}
		k.CheckAddFB(ev.Fd, fb, ev.Status)

	case OpRmFB:
		k.CheckRmFB(ev.Fd, ev.Fb)

	case OpGemOpen:
		k.CheckGemOpen(ev.Fd, ev.Name, ev.Bo)

	case OpGemClose:
		k.CheckGemClose(ev.Fd, ev.Bo)

	case OpGemCreate:
		k.CheckGemCreate(ev.Fd, ev.Bo)

	case OpGemWait:
		if ev.Status < math.MinInt32 || ev.Status > math.MaxInt32 {
			return fmt.Errorf("%w: status %d", ErrBadArgument, ev.Status)
		}
		k.CheckGemWait(ev.Fd, ev.Bo, int32(ev.Status), ev.Delay)

	case OpPrime:
		k.CheckPrime(ev.Fd, ev.Bo, ev.DmaFd)

	case OpDPMS:
		v, err := parseDPMS(ev.Value)
		if err != nil {
			return err
		}
		k.CheckSetDPMS(ev.Connector, v)
		k.CheckSetDPMSExit(ev.Connector, ev.Status)

	case OpPanelFitter:
		v, err := parsePanelFitter(ev.Value)
		if err != nil {
			return err
		}
		k.CheckSetPanelFitter(ev.Connector, v)

	case OpPanelFitterSource:
		k.CheckSetPanelFitterSourceSize(ev.Connector, ev.Width, ev.Height)

	case OpRotation:
		k.CheckSetPlaneRotation(ev.Plane, ev.Rotation)

	case OpVBlankRequest:
		k.CheckVBlankRequest(ev.Crtc)

	case OpVBlank:
		k.CheckVBlank(ev.Crtc, ev.Seq)

	case OpBuffer:
		format, err := parseFormat(ev.Format)
		if err != nil {
			return err
		}
		if ev.Handle == 0 {
			return fmt.Errorf("%w: handle", ErrMissingField)
		}
		k.RecordBufferState(buffer.Handle(ev.Handle), transform.SourceInput,
			buffer.Meta{Width: ev.Width, Height: ev.Height, Format: format}, ev.Name)

	case OpBufferFree:
		k.CheckBufferFree(buffer.Handle(ev.Handle))

	case OpLayers:
		return p.layers(ev)

	case OpLog:
		p.stats.LogLines++
		if le, ok := p.parser.Parse(ev.Line); ok {
			p.stats.Matched++
			k.HandleEvent(le)
		}

	case OpHotPlug:
		connected := ev.Connected == nil || *ev.Connected
		if !k.SimulateHotPlug(display.DisplayRemovable, connected) {
			p.logger.Info("hotplug had no removable display to act on", "connected", connected)
		}

	case OpValidateFrame:
		k.ValidateFrame(ev.Crtc, ev.Frame)

	case OpFrameCounts:
		k.SendFrameCounts(ev.Clear)

	case OpContent:
		return p.content(ev)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, ev.Op)
	}
	return nil
}

// content gives a buffer a copy of its pixels and the reference
// composition they should match, each a solid fill
func (p *Player) content(ev Event) error {
	if ev.Handle == 0 {
		return fmt.Errorf("%w: handle", ErrMissingField)
	}
	if ev.Width == 0 || ev.Height == 0 {
		return fmt.Errorf("%w: width and height", ErrMissingField)
	}
	cpy, err := solidImage(ev.Width, ev.Height, ev.Copy)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	ref, err := solidImage(ev.Width, ev.Height, ev.Ref)
	if err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	if !p.k.SetBufferContent(buffer.Handle(ev.Handle), cpy, ref) {
		p.logger.Info("content for unknown buffer", "handle", ev.Handle)
	}
	return nil
}

func solidImage(w, h uint32, rgba []uint8) (image.Image, error) {
	switch len(rgba) {
	case 0:
		return nil, nil
	case 4:
	default:
		return nil, fmt.Errorf("%w: colour needs 4 components, got %d", ErrBadArgument, len(rgba))
	}
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	fill := image.NewUniform(color.RGBA{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]})
	draw.Draw(img, img.Bounds(), fill, image.Point{}, draw.Src)
	return img, nil
}

func (p *Player) getConnector(ev Event) error {
	connType, err := parseConnectorType(ev.Type)
	if err != nil {
		return err
	}
	conn := &drm.Connector{ID: ev.Connector, Type: connType, Connection: drm.Connected}
	if ev.Connected != nil && !*ev.Connected {
		conn.Connection = drm.Disconnected
	}
	for i, s := range ev.Modes {
		m, err := parseModeInfo(s, i == 0)
		if err != nil {
			return err
		}
		conn.Modes = append(conn.Modes, m)
	}

	p.k.CheckGetConnectorExit(conn)
	if conn.Connection != drm.Connected {
		p.logger.Debug("connector reported disconnected", "connector", conn.ID)
	}
	return nil
}

// setPlaneArgs converts pixel source coordinates to 16.16 fixed point
func setPlaneArgs(ev Event) (*drm.ModeSetPlane, error) {
	sp := &drm.ModeSetPlane{PlaneID: ev.Plane, CrtcID: ev.Crtc, FbID: ev.Fb}
	if ev.Fb == 0 {
		return sp, nil
	}
	if len(ev.Src) != 4 || len(ev.Dst) != 4 {
		return nil, fmt.Errorf("%w: set_plane needs src and dst of 4 values", ErrMissingField)
	}
	fixed := func(v float64) uint32 { return uint32(math.Round(v * 65536)) }
	sp.SrcX, sp.SrcY = fixed(ev.Src[0]), fixed(ev.Src[1])
	sp.SrcW, sp.SrcH = fixed(ev.Src[2]), fixed(ev.Src[3])
	sp.CrtcX, sp.CrtcY = ev.Dst[0], ev.Dst[1]
	if ev.Dst[2] < 0 || ev.Dst[3] < 0 {
		return nil, fmt.Errorf("%w: negative dst size", ErrBadArgument)
	}
	sp.CrtcW, sp.CrtcH = uint32(ev.Dst[2]), uint32(ev.Dst[3])
	return sp, nil
}

// layers builds and submits the layer list of a frame. Buffers are looked
// up by handle; one not yet recorded is created with no metadata.
func (p *Player) layers(ev Event) error {
	video, err := parseVideo(ev.Video)
	if err != nil {
		return err
	}
	ll := layerlist.New(len(ev.Layers))
	ll.Video = video
	if ev.Fence != nil {
		ll.RetireFence = layerlist.NewFence(*ev.Fence)
	}

	for i, l := range ev.Layers {
		comp, err := parseComposition(l.Composition)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		geom, err := layerGeometry(l)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		validity, err := parseValidity(l.Validity)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}

		layer := layerlist.Layer{Composition: comp, Geometry: geom, Validity: validity}
		if l.Skip {
			layer.Flags |= layerlist.FlagSkip
		}
		if l.Handle != 0 {
			layer.Buf = p.k.RecordBufferState(buffer.Handle(l.Handle), transform.SourceInput, buffer.Meta{}, 0)
		}
		ll.Add(layer)
	}

	if err := p.k.SubmitLayerList(ev.Display, ll, ev.Frame); err != nil {
		return fmt.Errorf("display %d frame %d: %w", ev.Display, ev.Frame, err)
	}
	return nil
}

// KernelFactory creates the kernel a trace is replayed against
type KernelFactory func(ctx context.Context) *kernel.Kernel

// RunAll replays each trace file against its own kernel, concurrently, and
// returns the merged result. The first error stops the remaining replays.
func RunAll(ctx context.Context, paths []string, newKernel KernelFactory, logger *slog.Logger) (*checks.Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu     sync.Mutex
		merged = checks.NewResult()
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening trace: %w", err)
			}
			defer f.Close()

			k := newKernel(gctx)
			player := NewPlayer(k, logger.With("trace", path))
			runErr := player.Run(gctx, f)

			result, err := k.Shutdown()
			if runErr != nil {
				return fmt.Errorf("%s: %w", path, runErr)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			logger.Info("trace replayed", "trace", path, "events", player.Stats().Events)

			mu.Lock()
			merged.Add(result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}
