package kernel

import (
	"math/rand"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
)

// Frame rate offered as a second mode when DRRS is spoofed
const drrsSpoofRefresh = 48

// DisplayProperty names a value the harness may query about a display
type DisplayProperty int

const (
	PropConnectorID DisplayProperty = iota
)

func toMode(m drm.ModeInfo) display.Mode {
	return display.Mode{
		Width:     uint32(m.Hdisplay),
		Height:    uint32(m.Vdisplay),
		Refresh:   m.Vrefresh,
		Clock:     m.Clock,
		Flags:     m.Flags,
		Preferred: m.Type&drm.ModeTypePreferred != 0,
	}
}

// createPipe returns the CRTC on pipe, creating it if needed. id may be
// zero when the CRTC is only known by its pipe so far.
func (k *Kernel) createPipe(pipe int, id uint32) *display.Crtc {
	if pipe < 0 || pipe >= len(k.crtcByPipe) {
		k.logger.Warn("pipe out of range", "pipe", pipe, "crtc", id)
		return nil
	}
	if crtc := k.crtcByPipe[pipe]; crtc != nil {
		if id != 0 && crtc.ID() != id {
			k.logger.Warn("pipe already has a different CRTC", "pipe", pipe, "crtc", crtc.ID(), "new", id)
		}
		return crtc
	}
	crtc := display.NewCrtc(id, k.env)
	crtc.SetPipe(pipe)
	k.crtcByPipe[pipe] = crtc
	k.logger.Debug("pipe created", "pipe", pipe, "crtc", id)
	return crtc
}

// CheckGetResourcesExit records the CRTC ids returned by GETRESOURCES, in
// pipe order
func (k *Kernel) CheckGetResourcesExit(crtcIDs []uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	for i, id := range crtcIDs {
		if crtc := k.createPipe(i, id); crtc != nil {
			k.crtcs[id] = crtc
		}
	}
}

// overrideDefaultMode moves the preferred flag to the mode closest to the
// configured preferred HDMI mode
func (k *Kernel) overrideDefaultMode(conn *drm.Connector) {
	want := k.opts.PreferredHDMIMode
	if want.Width == 0 && want.Height == 0 && want.Refresh == 0 {
		return
	}

	var maxScore int
	realPreferred, newPreferred := -1, -1
	for i, m := range conn.Modes {
		score := 0
		if uint32(m.Hdisplay) == want.Width {
			score++
		}
		if uint32(m.Vdisplay) == want.Height {
			score++
		}
		if m.Vrefresh == want.Refresh {
			score++
		}
		if score > maxScore {
			newPreferred, maxScore = i, score
		}
		if m.Type&drm.ModeTypePreferred != 0 {
			realPreferred = i
		}
	}

	if maxScore == 0 {
		k.logger.Info("no mode matches preferred mode override", "connector", conn.ID, "mode", want)
		return
	}
	if realPreferred == newPreferred {
		return
	}
	if realPreferred >= 0 {
		conn.Modes[realPreferred].Type &^= drm.ModeTypePreferred
	}
	conn.Modes[newPreferred].Type |= drm.ModeTypePreferred
	k.logger.Info("preferred mode overridden", "connector", conn.ID,
		"mode", toMode(conn.Modes[newPreferred]), "exact", maxScore == 3)
}

// CheckGetConnectorExit records a connector returned by GETCONNECTOR. The
// result may be altered before it reaches the caller: a panel may be
// spoofed as removable, modes shuffled or a low refresh DRRS mode added,
// and a removable display simulated as unplugged is reported disconnected.
func (k *Kernel) CheckGetConnectorExit(conn *drm.Connector) {
	if conn == nil {
		return
	}
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	physHotPluggable := drm.IsRemovableConnector(conn.Type)
	if k.ledger.IsEnabled(checks.OptSpoofNoPanel) && !physHotPluggable {
		k.logger.Info("spoofing panel as HDMI", "connector", conn.ID)
		conn.Type = drm.ConnectorTypeHDMIA
	}
	hotPluggable := drm.IsRemovableConnector(conn.Type)

	if hotPluggable {
		k.overrideDefaultMode(conn)
		k.hotPluggable[conn.ID] = true
	} else {
		delete(k.hotPluggable, conn.ID)
	}

	if k.ledger.IsEnabled(checks.OptRandomizeModes) && len(conn.Modes) > 1 {
		rand.Shuffle(len(conn.Modes), func(i, j int) {
			conn.Modes[i], conn.Modes[j] = conn.Modes[j], conn.Modes[i]
		})
	}

	var realRefresh uint32
	drrs := k.spoofDRRS && !physHotPluggable
	if drrs && len(conn.Modes) == 1 && conn.Modes[0].Vrefresh > drrsSpoofRefresh {
		realRefresh = conn.Modes[0].Vrefresh
		low := conn.Modes[0]
		low.Vrefresh = drrsSpoofRefresh
		low.Type &^= drm.ModeTypePreferred
		conn.Modes = append(conn.Modes, low)
		k.logger.Info("spoofing DRRS", "connector", conn.ID, "refresh", realRefresh, "low", drrsSpoofRefresh)
	}

	modes := make([]display.Mode, len(conn.Modes))
	for i, m := range conn.Modes {
		modes[i] = toMode(m)
	}

	realType := display.DisplayFixed
	if physHotPluggable {
		realType = display.DisplayRemovable
	}

	c, ok := k.connectors[conn.ID]
	if !ok {
		c = &connector{displayIx: display.NoDisplay}
		k.connectors[conn.ID] = c
	}
	c.modes = modes
	c.realRefresh = realRefresh
	c.drrs = drrs
	c.realType = realType

	if crtc := c.crtc; crtc != nil {
		if hotPluggable && crtc.Width() == 0 {
			crtc.SimulateHotPlug(k.newDisplayConnected)
		}
		crtc.SetAvailableModes(modes)
		crtc.SetDRRS(drrs)
		if !crtc.IsBehavingAsConnected() {
			k.spoofDisconnected(conn)
		}
		return
	}
	if hotPluggable && !k.newDisplayConnected {
		k.spoofDisconnected(conn)
	}
}

func (k *Kernel) spoofDisconnected(conn *drm.Connector) {
	k.logger.Info("spoofing connector as disconnected", "connector", conn.ID)
	conn.Connection = drm.Disconnected
	conn.Modes = nil
}

// CheckSetCrtcEnter records a mode set. The CRTC is created if this is the
// first time it or its pipe has been seen; every connector is bound to it.
func (k *Kernel) CheckSetCrtcEnter(crtcID, fbID uint32, connectors []uint32, mode *drm.ModeInfo) {
	if mode == nil {
		k.logger.Info("SetCrtc with no mode", "crtc", crtcID)
		return
	}
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	displayType := display.DisplayFixed
	pipe := 0
	for i, id := range connectors {
		if k.hotPluggable[id] {
			displayType = display.DisplayRemovable
			pipe = i
		}
	}

	vrefresh := mode.Vrefresh
	width, height := uint32(mode.Hdisplay), uint32(mode.Vdisplay)

	crtc, known := k.crtcs[crtcID]
	switch {
	case !known && k.crtcByPipe[pipe] == nil:
		crtc = display.NewCrtc(crtcID, k.env)
		crtc.SetDimensions(width, height, mode.Clock, vrefresh)
		crtc.SetPipe(pipe)
		k.crtcs[crtcID] = crtc
		k.crtcByPipe[pipe] = crtc
		k.logger.Debug("pipe has new CRTC", "pipe", pipe, "crtc", crtcID, "mode", toMode(*mode))
	case !known:
		crtc = k.crtcByPipe[pipe]
		k.logger.Debug("CRTC maps to existing pipe", "pipe", pipe, "crtc", crtcID, "was", crtc.ID())
		crtc.SetID(crtcID)
		k.crtcs[crtcID] = crtc
	default:
		k.logger.Debug("mode reset", "crtc", crtcID, "mode", toMode(*mode))
	}

	crtc.SetDisplayType(displayType)
	crtc.SetActualMode(display.Mode{Width: width, Height: height, Refresh: vrefresh})

	mainPlane, ok := k.planes[crtcID]
	if !ok {
		if !k.opts.UniversalPlanes {
			k.logger.Debug("creating main plane", "plane", crtcID, "crtc", crtcID)
			mainPlane = display.NewPlane(crtcID, drm.PlaneTypePrimary)
			k.planes[crtcID] = mainPlane
			crtc.SetMainPlane(mainPlane)
		} else {
			mainPlane = crtc.MainPlane()
		}
	}

	for _, id := range connectors {
		c, ok := k.connectors[id]
		if !ok {
			k.logger.Warn("SetCrtc to unknown connector", "connector", id, "crtc", crtcID)
			c = &connector{displayIx: crtc.DisplayIx()}
			k.connectors[id] = c
			c.crtc = crtc
			crtc.SetDimensions(width, height, mode.Clock, vrefresh)
			crtc.AddConnector(id)
			continue
		}

		if c.realRefresh > 0 {
			vrefresh = c.realRefresh
			mode.Vrefresh = c.realRefresh
		}

		c.crtc = crtc
		crtc.SetDisplayIx(c.displayIx)
		crtc.SetRealDisplayType(c.realType)
		crtc.SetDRRS(c.drrs)
		if c.displayIx != display.NoDisplay && c.displayIx < len(k.crtcByDisp) {
			k.crtcByDisp[c.displayIx] = crtc
		}
		k.logger.Info("connector bound", "connector", id, "crtc", crtcID,
			"display", c.displayIx, "modes", len(c.modes))
		crtc.SetAvailableModes(c.modes)

		if c.displayIx == 0 && crtc.Width() != 0 {
			// D0 keeps its composition size and is scaled to the new mode
			crtc.SetOutDimensions(width, height)
		} else {
			crtc.SetDimensions(width, height, mode.Clock, vrefresh)
		}
		crtc.AddConnector(id)

		for _, other := range k.allCrtcs() {
			if other != crtc && c.displayIx != display.NoDisplay && other.DisplayIx() == c.displayIx {
				other.ClearDisplayIx()
			}
		}
	}

	if fbID != 0 && mainPlane != nil {
		if k.store.ByFbID(fbID) == nil {
			mainPlane.ClearBuf()
		} else {
			k.updateBufferPlane(fbID, crtc, mainPlane)
		}
	}

	crtc.EsdStateTransition(display.EsdDpmsOff, display.EsdModeSet)
	k.opts.Stalls.Do(display.StallSetDisplay, &k.mu)
}

// CheckSetCrtcExit records the outcome of a mode set
func (k *Kernel) CheckSetCrtcExit(crtcID uint32, ret int) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	k.ledger.IncEval(checks.CheckDrmCallSuccess)
	crtc := k.crtcs[crtcID]
	if ret != 0 {
		k.ledger.Report(checks.CheckDrmCallSuccess, "drmModeSetCrtcExit failed to CRTC %d (status %d)", crtcID, ret)
		return
	}
	if crtc != nil {
		crtc.SetModeSet(true)
	}
}

// CheckSetDPMS records a DPMS change requested through a connector
func (k *Kernel) CheckSetDPMS(connID uint32, value uint64) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc := k.connectorCrtc(connID)
	if crtc == nil {
		k.logger.Warn("DPMS enable/disable for unknown connector", "connector", connID, "value", value)
		return
	}
	switch value {
	case drm.DpmsOff:
		crtc.SetDPMSEnabled(false)
		crtc.SetModeSet(false)
	case drm.DpmsOn:
		crtc.SetDPMSEnabled(true)
	default:
		k.logger.Info("DPMS mode not modelled", "connector", connID, "value", value)
	}
	k.opts.Stalls.Do(display.StallDPMS, &k.mu)
	crtc.SetDPMSInProgress(true)
}

// CheckSetDPMSExit ends a DPMS call started by CheckSetDPMS
func (k *Kernel) CheckSetDPMSExit(connID uint32, status int) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc := k.connectorCrtc(connID)
	if crtc == nil {
		return
	}
	crtc.SetDPMSInProgress(false)
	if status != 0 {
		k.logger.Warn("DPMS call failed", "connector", connID, "status", status)
	}
}

// CheckSetPanelFitter records a panel fitter mode property change
func (k *Kernel) CheckSetPanelFitter(connID uint32, mode uint64) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc := k.connectorCrtc(connID)
	if crtc == nil {
		k.logger.Warn("panel fitter set on unknown connector", "connector", connID)
		return
	}
	crtc.SetPanelFitter(display.PanelFitterMode(mode))
}

// CheckSetPanelFitterSourceSize records the panel fitter's input size
func (k *Kernel) CheckSetPanelFitterSourceSize(connID, width, height uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc := k.connectorCrtc(connID)
	if crtc == nil {
		k.logger.Warn("panel fitter source size set on unknown connector", "connector", connID)
		return
	}
	crtc.SetPanelFitterSourceSize(width, height)
}

func (k *Kernel) connectorCrtc(connID uint32) *display.Crtc {
	if c, ok := k.connectors[connID]; ok {
		return c.crtc
	}
	return nil
}

// ValidateDisplayMapping records the compositor connecting a connector to
// a CRTC. The connector takes the lowest logical display not already held
// by another connected connector.
func (k *Kernel) ValidateDisplayMapping(connID, crtcID uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	used := make(map[int]bool)
	for id, c := range k.connectors {
		if id == connID || c.crtc == nil || c.displayIx == display.NoDisplay {
			continue
		}
		used[c.displayIx] = true
	}
	d := 0
	for used[d] {
		d++
	}
	if d >= len(k.crtcByDisp) {
		k.logger.Warn("no logical display free for connector", "connector", connID, "crtc", crtcID)
		return
	}
	k.mapDisplay(d, connID, crtcID)
}

func (k *Kernel) mapDisplay(d int, connID, crtcID uint32) {
	c, ok := k.connectors[connID]
	if !ok {
		k.logger.Warn("display mapped to unknown connector", "display", d, "connector", connID)
		return
	}
	c.displayIx = d
	k.logger.Info("display mapped", "display", d, "connector", connID, "crtc", crtcID)

	if c.crtc == nil {
		return
	}
	if c.crtc.ID() != crtcID {
		k.logger.Warn("inconsistent connector-CRTC mapping",
			"connector", connID, "crtc", c.crtc.ID(), "mapped", crtcID)
		return
	}
	for i, other := range k.crtcByDisp {
		if other == c.crtc && i != d {
			k.crtcByDisp[i] = nil
		}
	}
	c.crtc.SetDisplayIx(d)
	k.crtcByDisp[d] = c.crtc
}

// ValidateDisplayUnmapping records the compositor resetting a CRTC's
// connection
func (k *Kernel) ValidateDisplayUnmapping(crtcID uint32) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	crtc, ok := k.crtcs[crtcID]
	if !ok {
		k.logger.Warn("unmapping unknown CRTC", "crtc", crtcID)
		return
	}
	if d := crtc.DisplayIx(); d >= 0 && d < len(k.crtcByDisp) && k.crtcByDisp[d] == crtc {
		k.crtcByDisp[d] = nil
	}
	k.logger.Info("display unmapped", "display", crtc.DisplayIx(), "crtc", crtcID)
	crtc.ClearDisplayIx()
	for _, c := range k.connectors {
		if c.crtc == crtc {
			c.displayIx = display.NoDisplay
		}
	}
}

// ValidateEsdRecovery records the compositor starting ESD recovery on
// logical display d
func (k *Kernel) ValidateEsdRecovery(d int) {
	if !k.lock() {
		return
	}
	defer k.mu.Unlock()

	if d < 0 || d >= len(k.crtcByDisp) || k.crtcByDisp[d] == nil {
		k.logger.Warn("ESD recovery on unknown display", "display", d)
		return
	}
	crtc := k.crtcByDisp[d]
	crtc.EsdStateTransition(display.EsdAny, display.EsdStarted)
	crtc.MarkEsdRecoveryStart()
}

// SimulateHotPlug connects or disconnects every removable display whose
// real type is in types. It reports whether any display was changed.
func (k *Kernel) SimulateHotPlug(types display.DisplayType, connected bool) bool {
	if !k.lock() {
		return false
	}
	defer k.mu.Unlock()

	k.newDisplayConnected = connected
	done := false
	for _, crtc := range k.crtcByPipe {
		if crtc == nil || !crtc.IsHotPluggable() || crtc.RealDisplayType()&types == 0 {
			continue
		}
		k.logger.Info("simulating hot plug", "crtc", crtc.ID(), "connected", connected)
		crtc.SimulateHotPlug(connected)
		done = true
	}
	return done
}

// IsHotPluggableDisplayAvailable reports whether a removable display is
// present and not simulated as unplugged
func (k *Kernel) IsHotPluggableDisplayAvailable() bool {
	if !k.lock() {
		return false
	}
	defer k.mu.Unlock()

	if !k.newDisplayConnected {
		return false
	}
	for _, crtc := range k.crtcByPipe {
		if crtc != nil && crtc.IsHotPluggable() {
			return true
		}
	}
	return false
}

// GetDisplayProperty returns a property of logical display d, or zero if
// the display is not mapped
func (k *Kernel) GetDisplayProperty(d int, prop DisplayProperty) uint32 {
	if !k.lock() {
		return 0
	}
	defer k.mu.Unlock()

	if d < 0 || d >= len(k.crtcByDisp) || k.crtcByDisp[d] == nil {
		return 0
	}
	switch prop {
	case PropConnectorID:
		if conns := k.crtcByDisp[d].Connectors(); len(conns) > 0 {
			return conns[0]
		}
	default:
		k.logger.Warn("unknown display property", "display", d, "property", int(prop))
	}
	return 0
}

// IsDRRSEnabled reports whether DRRS is being spoofed on a connector
func (k *Kernel) IsDRRSEnabled(connID uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	c, ok := k.connectors[connID]
	if !ok {
		k.logger.Debug("IsDRRSEnabled: connector not found", "connector", connID)
		return false
	}
	return c.drrs
}
