// Package config loads harness settings with viper. Every setting has a
// default, so a missing config file is not an error; HWCVAL_ environment
// variables override the file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/display"
	"github.com/emergingrobotics/go-hwcval/pkg/layerlist"
)

// Name is the config file name searched for, without extension
const Name = "hwcval"

// SearchPaths are the directories searched for the config file, in order
var SearchPaths = []string{".", "./config", "$HOME/.hwcval", "/etc/hwcval"}

// Validate selects the check components that are enabled
type Validate struct {
	HWC         bool `mapstructure:"hwc"`
	Displays    bool `mapstructure:"displays"`
	Buffers     bool `mapstructure:"buffers"`
	SF          bool `mapstructure:"sf"`
	Composition bool `mapstructure:"composition"`
}

// Watchdog holds the deadlines enforced on each CRTC
type Watchdog struct {
	VBlank     time.Duration `mapstructure:"vblank"`
	PageFlip   time.Duration `mapstructure:"pageflip"`
	SetDisplay time.Duration `mapstructure:"setdisplay"`
	DPMS       time.Duration `mapstructure:"dpms"`
}

type LayerList struct {
	Depth int `mapstructure:"depth"`
}

type Esd struct {
	MaxRecovery time.Duration `mapstructure:"max_recovery"`
}

type Report struct {
	Format string `mapstructure:"format"`
	Brief  bool   `mapstructure:"brief"`
}

// Kernel holds settings describing the display hardware
type Kernel struct {
	Device            string `mapstructure:"device"`
	UniversalPlanes   bool   `mapstructure:"universal_planes"`
	SpoofDRRS         bool   `mapstructure:"spoof_drrs"`
	StartUnplugged    bool   `mapstructure:"start_unplugged"`
	PreferredHDMIMode string `mapstructure:"preferred_hdmi_mode"`
	CompareWorkers    int    `mapstructure:"compare_workers"`
}

// Config is the complete harness configuration
type Config struct {
	Checks    checks.Overrides  `mapstructure:"checks"`
	Validate  Validate          `mapstructure:"validate"`
	Watchdog  Watchdog          `mapstructure:"watchdog"`
	Stall     map[string]string `mapstructure:"stall"`
	LayerList LayerList         `mapstructure:"layerlist"`
	Esd       Esd               `mapstructure:"esd"`
	Report    Report            `mapstructure:"report"`
	Kernel    Kernel            `mapstructure:"kernel"`

	// File is the config file that was read, or empty
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("checks.enable", []string{})
	v.SetDefault("checks.disable", []string{})
	v.SetDefault("checks.setwarning", []string{})
	v.SetDefault("checks.force_disable", []string{})

	v.SetDefault("validate.hwc", true)
	v.SetDefault("validate.displays", true)
	v.SetDefault("validate.buffers", true)
	v.SetDefault("validate.sf", true)
	v.SetDefault("validate.composition", false)

	v.SetDefault("watchdog.vblank", display.VBlankTimeout)
	v.SetDefault("watchdog.pageflip", display.PageFlipTimeout)
	v.SetDefault("watchdog.setdisplay", display.SetDisplayTimeout)
	v.SetDefault("watchdog.dpms", display.DPMSTimeout)

	v.SetDefault("stall", map[string]string{})
	v.SetDefault("layerlist.depth", layerlist.DefaultDepth)
	v.SetDefault("esd.max_recovery", display.MaxEsdRecovery)

	v.SetDefault("report.format", checks.FormatText)
	v.SetDefault("report.brief", false)

	v.SetDefault("kernel.device", "generic")
	v.SetDefault("kernel.universal_planes", true)
	v.SetDefault("kernel.spoof_drrs", false)
	v.SetDefault("kernel.start_unplugged", false)
	v.SetDefault("kernel.preferred_hdmi_mode", "")
	v.SetDefault("kernel.compare_workers", 0)
}

// New returns a viper instance with the harness defaults and environment
// binding but no config file
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HWCVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or searches SearchPaths for
// hwcval.yaml when path is empty
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v. Callers that bind
// command line flags to v should do so before calling it.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Report.Format {
	case checks.FormatText, checks.FormatYAML, checks.FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrBadReportFormat, c.Report.Format)
	}
	if _, err := c.Device(); err != nil {
		return err
	}
	if _, err := c.PreferredHDMIMode(); err != nil {
		return err
	}
	if _, err := c.Stalls(); err != nil {
		return err
	}
	return nil
}

// ChecksConfig builds the check configuration: components enabled as
// selected, then the name-matched overrides applied
func (c *Config) ChecksConfig() (*checks.Config, error) {
	cc := checks.NewConfig()
	cc.Initialise(c.Validate.HWC, c.Validate.Displays, c.Validate.Buffers, c.Validate.SF, c.Validate.Composition)
	if err := cc.ApplyOverrides(c.Checks); err != nil {
		return cc, fmt.Errorf("applying check overrides: %w", err)
	}
	return cc, nil
}

// Timeouts returns the watchdog deadlines, with zero settings left at
// their defaults
func (c *Config) Timeouts() display.Timeouts {
	t := display.DefaultTimeouts()
	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	set(&t.VBlank, c.Watchdog.VBlank)
	set(&t.PageFlip, c.Watchdog.PageFlip)
	set(&t.SetDisplay, c.Watchdog.SetDisplay)
	set(&t.DPMS, c.Watchdog.DPMS)
	set(&t.EsdRecovery, c.Esd.MaxRecovery)
	return t
}

// Stalls parses the configured stall points
func (c *Config) Stalls() (display.Stalls, error) {
	var ss display.Stalls
	for name, spec := range c.Stall {
		p, err := display.ParseStallPoint(name)
		if err != nil {
			return ss, err
		}
		s, err := display.ParseStall(name, spec)
		if err != nil {
			return ss, fmt.Errorf("stall %s: %w", name, err)
		}
		ss[p] = s
	}
	return ss, nil
}

// Device returns the display generation whose plane rules apply
func (c *Config) Device() (display.Device, error) {
	switch strings.ToLower(c.Kernel.Device) {
	case "", "generic":
		return display.DeviceGeneric, nil
	case "broxton", "bxt":
		return display.DeviceBroxton, nil
	default:
		return display.DeviceGeneric, fmt.Errorf("%w: %q", ErrBadDevice, c.Kernel.Device)
	}
}

// PreferredHDMIMode parses the "<w>x<h>[@<refresh>]" preferred mode
// override. An empty setting returns the zero mode.
func (c *Config) PreferredHDMIMode() (display.Mode, error) {
	return ParseMode(c.Kernel.PreferredHDMIMode)
}

// ParseMode parses a display mode written as "<w>x<h>[@<refresh>]"
func ParseMode(s string) (display.Mode, error) {
	var m display.Mode
	s = strings.TrimSpace(s)
	if s == "" {
		return m, nil
	}

	size, refresh, hasRefresh := strings.Cut(s, "@")
	ws, hs, ok := strings.Cut(strings.ToLower(size), "x")
	if !ok {
		return m, fmt.Errorf("%w: %q", ErrBadMode, s)
	}
	w, err := strconv.ParseUint(ws, 10, 32)
	if err != nil {
		return m, fmt.Errorf("%w: %q", ErrBadMode, s)
	}
	h, err := strconv.ParseUint(hs, 10, 32)
	if err != nil {
		return m, fmt.Errorf("%w: %q", ErrBadMode, s)
	}
	m.Width, m.Height = uint32(w), uint32(h)

	if hasRefresh {
		r, err := strconv.ParseUint(refresh, 10, 32)
		if err != nil {
			return m, fmt.Errorf("%w: %q", ErrBadMode, s)
		}
		m.Refresh = uint32(r)
	}
	return m, nil
}
