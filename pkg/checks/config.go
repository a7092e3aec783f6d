package checks

import (
	"fmt"
	"strings"
)

// PanelMode is the test's expectation of whether the primary panel is on
// while extended mode video is playing
type PanelMode int

const (
	PanelDontCare PanelMode = iota
	PanelOff
	PanelOn
)

func (m PanelMode) String() string {
	switch m {
	case PanelOn:
		return "On"
	case PanelOff:
		return "Off"
	default:
		return "Undefined"
	}
}

// CheckConfig is the per-check switch set
type CheckConfig struct {
	Enable         bool
	ForceDisable   bool
	CausesTestFail bool
	Priority       Priority
	Category       Category
}

// Overrides are name-matched adjustments applied on top of Initialise.
// Names are formal check names such as "LayerDisplay" or "OptBrief".
type Overrides struct {
	Enable       []string `mapstructure:"enable" yaml:"enable"`
	Disable      []string `mapstructure:"disable" yaml:"disable"`
	SetWarning   []string `mapstructure:"setwarning" yaml:"setwarning"`
	ForceDisable []string `mapstructure:"force_disable" yaml:"force_disable"`
}

// Config decides which checks are enabled, at what priority, and whether
// their failure fails the run
type Config struct {
	MinLogPriority      Priority
	BufferMonitorEnable bool

	checks           [NumChecks]CheckConfig
	componentEnabled [numComponents]bool
	globalEnable     bool
	modeExpect       PanelMode
	stableModeExpect PanelMode
}

// NewConfig returns a config with every check at its default priority,
// disabled until Initialise is called
func NewConfig() *Config {
	c := &Config{
		MinLogPriority:      PriorityInfo,
		BufferMonitorEnable: true,
	}
	for i := range c.checks {
		c.checks[i] = CheckConfig{
			CausesTestFail: true,
			Priority:       checkTable[i].priority,
			Category:       checkTable[i].category,
		}
	}
	for i := range c.componentEnabled {
		c.componentEnabled[i] = true
	}
	return c
}

// Initialise selects which components can fail the run and turns on the
// master switch. The Test component is always enabled.
func (c *Config) Initialise(valHwc, valDisplays, valBuffers, valSf, valHwcComposition bool) {
	c.SetComponentEnabled(ComponentTest, true, true)
	c.SetComponentEnabled(ComponentHWC, true, valHwc)
	c.SetComponentEnabled(ComponentDisplays, true, valDisplays)
	c.SetComponentEnabled(ComponentBuffers, true, valBuffers)
	c.SetComponentEnabled(ComponentSF, true, valSf)

	if valHwcComposition {
		c.SetCheck(CheckHwcCompMatchesRef, true, true)
	}

	c.globalEnable = true
}

// DisableAllChecks clears the master switch
func (c *Config) DisableAllChecks() {
	c.globalEnable = false
}

// SetCheck enables or disables a single check. A force-disabled check stays
// disabled and never fails the run.
func (c *Config) SetCheck(check Check, enable, causesTestFail bool) {
	if !check.Valid() {
		return
	}
	cfg := &c.checks[check]
	if cfg.ForceDisable {
		cfg.Enable = false
		cfg.CausesTestFail = false
		return
	}
	cfg.Enable = enable
	cfg.CausesTestFail = causesTestFail
}

// SetComponentEnabled applies SetCheck to every non-option check of a component
func (c *Config) SetComponentEnabled(component Component, enable, causesTestFail bool) {
	if component < 0 || component >= numComponents {
		return
	}
	c.componentEnabled[component] = causesTestFail
	for i := range c.checks {
		if checkTable[i].component == component && c.checks[i].Category != CategoryOpt {
			c.SetCheck(Check(i), enable, causesTestFail)
		}
	}
}

// IsComponentEnabled reports whether failures in the component fail the run
func (c *Config) IsComponentEnabled(component Component) bool {
	if component < 0 || component >= numComponents {
		return false
	}
	return c.componentEnabled[component]
}

// ComponentEnableStr is the report annotation for a component
func (c *Config) ComponentEnableStr(component Component) string {
	if c.IsComponentEnabled(component) {
		return ""
	}
	return "[DISABLED]"
}

// IsEnabled reports whether a check is both enabled and under the master switch
func (c *Config) IsEnabled(check Check) bool {
	return check.Valid() && c.checks[check].Enable && c.globalEnable
}

// IsLevelEnabled reports whether a log at priority p should be emitted
func (c *Config) IsLevelEnabled(p Priority) bool {
	return p >= c.MinLogPriority
}

// Check returns a copy of a check's configuration
func (c *Config) Check(check Check) CheckConfig {
	if !check.Valid() {
		return CheckConfig{}
	}
	return c.checks[check]
}

// Priority returns the current priority of a check
func (c *Config) Priority(check Check) Priority {
	if !check.Valid() {
		return PriorityError
	}
	return c.checks[check].Priority
}

// SetPriority overrides the priority of a check
func (c *Config) SetPriority(check Check, p Priority) {
	if check.Valid() {
		c.checks[check].Priority = p
	}
}

// SetModeExpect sets the expected extended mode panel state. The stable
// expectation only takes the new value after one further query.
func (c *Config) SetModeExpect(m PanelMode) {
	c.modeExpect = m
	c.stableModeExpect = PanelDontCare
}

// ModeExpect returns the current extended mode panel expectation
func (c *Config) ModeExpect() PanelMode {
	return c.modeExpect
}

// StableModeExpect returns the expectation that was in force on the previous
// query, then latches the current one
func (c *Config) StableModeExpect() PanelMode {
	result := c.stableModeExpect
	c.stableModeExpect = c.modeExpect
	return result
}

// ApplyOverrides applies name-matched enable, disable, set-warning and
// force-disable lists. Unknown names are collected into the returned error
// but do not stop the remaining overrides from being applied.
func (c *Config) ApplyOverrides(o Overrides) error {
	var unknown []string

	each := func(names []string, fn func(Check)) {
		for _, name := range names {
			check, ok := CheckFromName(name)
			if !ok {
				unknown = append(unknown, name)
				continue
			}
			fn(check)
		}
	}

	each(o.ForceDisable, func(check Check) {
		c.checks[check].ForceDisable = true
		c.SetCheck(check, false, false)
	})
	each(o.Enable, func(check Check) {
		c.SetCheck(check, true, c.componentEnabled[check.Component()])
	})
	each(o.Disable, func(check Check) {
		c.SetCheck(check, false, false)
	})
	each(o.SetWarning, func(check Check) {
		if c.checks[check].Priority > PriorityWarn {
			c.checks[check].Priority = PriorityWarn
		}
	})

	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCheck, strings.Join(unknown, ", "))
	}
	return nil
}

// CheckFromName resolves a formal check name. An exact match wins; failing
// that the longest table name contained in s is used, so "eCheckLayerDisplay"
// and "FlickerClrDepth failure" both resolve.
func CheckFromName(s string) (Check, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CheckTestFail, false
	}
	name := strings.TrimPrefix(s, "eCheck")
	if name == s && strings.HasPrefix(s, "eOpt") {
		name = s[1:]
	}
	for i := range checkTable {
		if checkTable[i].name == name {
			return Check(i), true
		}
	}

	best := -1
	for i := range checkTable {
		if strings.Contains(s, checkTable[i].name) {
			if best < 0 || len(checkTable[i].name) > len(checkTable[best].name) {
				best = i
			}
		}
	}
	if best < 0 {
		return CheckTestFail, false
	}
	return Check(best), true
}
