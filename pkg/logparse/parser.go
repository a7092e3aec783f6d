package logparse

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Matcher recognises one kind of log line
type Matcher func(line string) (Event, bool)

var (
	pageFlipRE    = regexp.MustCompile(`DrmPageFlip .* issuing drm updates for (.*)$`)
	crtcRE        = regexp.MustCompile(`Crtc (\d+)`)
	frameRE       = regexp.MustCompile(`frame:(\d+)`)
	releaseToRE   = regexp.MustCompile(`drm releaseTo.*DrmConnector (\d+)`)
	esdRE         = regexp.MustCompile(`Drm ESDEvent to D(\d+)`)
	teardownRE    = regexp.MustCompile(`DRM Display Self Teardown`)
	hotplugRE     = regexp.MustCompile(`Drm HotPlugEvent to hotpluggable`)
	mappingRE     = regexp.MustCompile(`^DrmDisplay .*DrmConnector (\d+)\s*DRM New Connection Connector .*CrtcID (\d+)`)
	unmappingRE   = regexp.MustCompile(`^DRM Reset Connection Connector .*CrtcID (\d+)`)
	queueDropRE   = regexp.MustCompile(`^Queue: .*Drop WorkItem:.*Crtc (\d+).*frame:(\d+)`)
	displayDropRE = regexp.MustCompile(`^drm DrmDisplay (\d+).*drop frame:(\d+)`)
	bufferFreeRE  = regexp.MustCompile(`BufferManager: Notification free buffer handle (?:0x)?([0-9a-fA-F]+)`)
	optionRE      = regexp.MustCompile(`Option (Default|Forced) ([^:\s]+): ?(.*)$`)
	sfFallbackRE  = regexp.MustCompile(`^D.*fallbackToSurfaceFlinger!`)
	twoStageRE    = regexp.MustCompile(`^TwoStageFallbackComposer`)
	lowlossRE     = regexp.MustCompile(`^LowlossComposer`)
	rotationRE    = regexp.MustCompile(`^Rotation in progress.*FrameKeepCnt: (\d+).*SnapshotLayerHandle: (?:0x)?([0-9a-fA-F]+)`)
)

func parseUint32(s string) uint32 {
	v, _ := strconv.ParseUint(s, 10, 32)
	return uint32(v)
}

func parseHandle(s string) uint64 {
	v, _ := strconv.ParseUint(s, 16, 64)
	return v
}

// MatchPageFlipUpdates recognises the compositor issuing a frame's DRM
// updates. The CRTC may appear anywhere in the line; the frame number is
// looked for only after the announcement.
func MatchPageFlipUpdates(line string) (Event, bool) {
	m := pageFlipRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	c := crtcRE.FindStringSubmatch(line)
	if c == nil {
		return nil, false
	}
	ev := PageFlipUpdates{Crtc: parseUint32(c[1])}
	if f := frameRE.FindStringSubmatch(m[1]); f != nil {
		ev.Frame = parseUint32(f[1])
	}
	return ev, true
}

func MatchReleaseTo(line string) (Event, bool) {
	m := releaseToRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return ReleaseTo{Connector: parseUint32(m[1])}, true
}

func MatchEsd(line string) (Event, bool) {
	m := esdRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	d, _ := strconv.Atoi(m[1])
	return EsdEvent{Display: d}, true
}

// MatchSelfTeardown recognises teardown and removable-display hotplug
// lines. Neither needs checking but both are claimed so that later
// matchers do not see them.
func MatchSelfTeardown(line string) (Event, bool) {
	switch {
	case teardownRE.MatchString(line):
		return SelfTeardown{}, true
	case hotplugRE.MatchString(line):
		return HotPlugToHotpluggable{}, true
	}
	return nil, false
}

func MatchDisplayMapping(line string) (Event, bool) {
	m := mappingRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return DisplayMapped{Connector: parseUint32(m[1]), Crtc: parseUint32(m[2])}, true
}

func MatchDisplayUnmapping(line string) (Event, bool) {
	m := unmappingRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return DisplayUnmapped{Crtc: parseUint32(m[1])}, true
}

// MatchDropFrame recognises both forms of dropped frame notification
func MatchDropFrame(line string) (Event, bool) {
	if m := queueDropRE.FindStringSubmatch(line); m != nil {
		return FrameDropped{ByCrtc: true, Crtc: parseUint32(m[1]), Frame: parseUint32(m[2])}, true
	}
	if m := displayDropRE.FindStringSubmatch(line); m != nil {
		d, _ := strconv.Atoi(m[1])
		return FrameDropped{Display: d, Frame: parseUint32(m[2])}, true
	}
	return nil, false
}

// MatchBufferFree recognises buffer manager frees. A zero handle is not
// an event.
func MatchBufferFree(line string) (Event, bool) {
	m := bufferFreeRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	h := parseHandle(m[1])
	if h == 0 {
		return nil, false
	}
	return BufferFreed{Handle: h}, true
}

func MatchOption(line string) (Event, bool) {
	m := optionRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return Option{Name: m[2], Value: strings.TrimSpace(m[3]), Forced: m[1] == "Forced"}, true
}

func MatchComposition(line string) (Event, bool) {
	switch {
	case sfFallbackRE.MatchString(line):
		return Composition{Composer: ComposerSurfaceFlinger}, true
	case twoStageRE.MatchString(line):
		return Composition{Composer: ComposerTwoStageFallback}, true
	case lowlossRE.MatchString(line):
		return Composition{Composer: ComposerLowloss}, true
	}
	return nil, false
}

func MatchSnapshot(line string) (Event, bool) {
	m := rotationRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return Snapshot{KeepCount: parseUint32(m[1]), Handle: parseHandle(m[2])}, true
}

// DefaultMatchers returns the DRM matchers in priority order followed by
// the compositor matchers
func DefaultMatchers() []Matcher {
	return []Matcher{
		MatchPageFlipUpdates,
		MatchReleaseTo,
		MatchEsd,
		MatchSelfTeardown,
		MatchDisplayMapping,
		MatchDisplayUnmapping,
		MatchDropFrame,
		MatchBufferFree,
		MatchOption,
		MatchComposition,
		MatchSnapshot,
	}
}

// Parser runs a chain of matchers over log lines. The first matcher to
// recognise a line wins.
type Parser struct {
	matchers []Matcher
	logger   *slog.Logger
}

// NewParser returns a parser using matchers, or DefaultMatchers when none
// are given
func NewParser(logger *slog.Logger, matchers ...Matcher) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Parser{matchers: matchers, logger: logger}
}

// Parse returns the event on line, if any
func (p *Parser) Parse(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	for _, m := range p.matchers {
		if ev, ok := m(line); ok {
			p.logger.Debug("log event", "event", ev)
			return ev, true
		}
	}
	return nil, false
}
