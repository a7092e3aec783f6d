package checks

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Report formats
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// CheckSummary is one failing enabled check in a structured report
type CheckSummary struct {
	Name           string `yaml:"name" json:"name"`
	Component      string `yaml:"component" json:"component"`
	Description    string `yaml:"description" json:"description"`
	Priority       string `yaml:"priority" json:"priority"`
	Failed         uint32 `yaml:"failed" json:"failed"`
	Evaluated      uint32 `yaml:"evaluated" json:"evaluated"`
	CausesTestFail bool   `yaml:"causes_test_fail" json:"causes_test_fail"`
}

// DisplaySummary is the frame statistics of one display slot
type DisplaySummary struct {
	Display                     int     `yaml:"display" json:"display"`
	Frames                      uint32  `yaml:"frames" json:"frames"`
	FPS                         float64 `yaml:"fps" json:"fps"`
	DroppedFrames               uint32  `yaml:"dropped_frames" json:"dropped_frames"`
	MaxConsecutiveDroppedFrames uint32  `yaml:"max_consecutive_dropped_frames" json:"max_consecutive_dropped_frames"`
}

// Summary is the structured form of a run's report
type Summary struct {
	RunID             string           `yaml:"run_id" json:"run_id"`
	TestName          string           `yaml:"test_name" json:"test_name"`
	Passed            bool             `yaml:"passed" json:"passed"`
	DurationSeconds   float64          `yaml:"duration_seconds" json:"duration_seconds"`
	Checks            []CheckSummary   `yaml:"checks" json:"checks"`
	Displays          []DisplaySummary `yaml:"displays" json:"displays"`
	HwcCompValCount   uint32           `yaml:"hwc_compositions" json:"hwc_compositions"`
	HwcCompValSkipped uint32           `yaml:"hwc_compositions_skipped" json:"hwc_compositions_skipped"`
	SfCompValCount    uint32           `yaml:"sf_compositions" json:"sf_compositions"`
	SfCompValSkipped  uint32           `yaml:"sf_compositions_skipped" json:"sf_compositions_skipped"`
}

// Summarise builds the structured report. Checks are ordered by component
// then by descending priority, as in the text report.
func (r *Result) Summarise(config *Config, testName string) Summary {
	s := Summary{
		RunID:             r.RunID.String(),
		TestName:          testName,
		Passed:            !r.IsGlobalFail(),
		DurationSeconds:   r.Duration().Seconds(),
		HwcCompValCount:   r.HwcCompValCount,
		HwcCompValSkipped: r.HwcCompValSkipped,
		SfCompValCount:    r.SfCompValCount,
		SfCompValSkipped:  r.SfCompValSkipped,
	}

	r.eachFailing(config, func(component Component) {}, func(check Check, _ string) {
		s.Checks = append(s.Checks, CheckSummary{
			Name:           check.String(),
			Component:      check.Component().String(),
			Description:    check.Description(),
			Priority:       r.finalPriority[check].String(),
			Failed:         r.FailCount[check],
			Evaluated:      r.EvalCount[check],
			CausesTestFail: r.causesTestFail[check],
		})
	})

	for i, d := range r.Displays {
		s.Displays = append(s.Displays, DisplaySummary{
			Display:                     i,
			Frames:                      d.Frames,
			FPS:                         fps(d.Frames, r.Duration()),
			DroppedFrames:               d.DroppedFrames,
			MaxConsecutiveDroppedFrames: d.MaxConsecutiveDroppedFrames,
		})
	}
	return s
}

// eachFailing walks components in order and, within each, failing enabled
// checks from fatal down to info
func (r *Result) eachFailing(config *Config, onComponent func(Component), onCheck func(Check, string)) {
	for component := ComponentNone; component < numComponents; component++ {
		needed := false
		for i := range checkTable {
			check := Check(i)
			if checkTable[i].component == component && config.IsEnabled(check) && r.FailCount[i] > 0 {
				needed = true
				break
			}
		}
		if !needed {
			continue
		}
		onComponent(component)

		for p := PriorityFatal; p >= PriorityInfo; p-- {
			for i := range checkTable {
				check := Check(i)
				if checkTable[i].component == component && config.IsEnabled(check) &&
					r.finalPriority[i] == p && r.FailCount[i] > 0 {
					onCheck(check, priorityPlural(p))
				}
			}
		}
	}
}

func priorityPlural(p Priority) string {
	switch p {
	case PriorityWarn:
		return "warnings"
	case PriorityError:
		return "errors"
	case PriorityFatal:
		return "fatal errors"
	default:
		return "messages"
	}
}

func fps(frames uint32, d time.Duration) float64 {
	secs := d.Seconds()
	if secs <= 0 {
		return 0
	}
	f := float64(frames) / secs
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// WriteText writes the line-oriented report. In brief mode the verdict comes
// first and lines that do not affect it are prefixed with "##".
func (r *Result) WriteText(w io.Writer, config *Config, testName string, brief bool) error {
	var b strings.Builder

	if brief {
		r.writePassFail(&b, testName)
	}

	for component := ComponentNone; component < numComponents; component++ {
		titleNeeded := false
		titleNeededInBrief := false
		for i := range checkTable {
			check := Check(i)
			if checkTable[i].component != component || !config.IsEnabled(check) || r.FailCount[i] == 0 {
				continue
			}
			titleNeeded = true
			if (r.finalPriority[i] >= PriorityError || config.checks[i].Category == CategoryPriWarn) &&
				r.causesTestFail[i] {
				titleNeededInBrief = true
			}
		}
		if !titleNeeded {
			continue
		}

		titlePrefix := ""
		if brief {
			if titleNeededInBrief {
				titlePrefix = "  "
			} else {
				titlePrefix = "##"
			}
		}
		fmt.Fprintf(&b, "%sCOMPONENT: %s %s\n", titlePrefix, component, config.ComponentEnableStr(component))

		for p := PriorityFatal; p >= PriorityInfo; p-- {
			prefix := titlePrefix
			if brief && (p == PriorityWarn || p == PriorityInfo) {
				prefix = "##"
			}
			plural := priorityPlural(p)

			for i := range checkTable {
				check := Check(i)
				if checkTable[i].component != component || !config.IsEnabled(check) ||
					r.finalPriority[i] != p || r.FailCount[i] == 0 {
					continue
				}
				checkPrefix := prefix
				if !r.causesTestFail[i] {
					checkPrefix = "##"
				}
				if r.EvalCount[i] > 0 {
					fmt.Fprintf(&b, "%s    %s: %d/%d %s\n", checkPrefix, check.Description(), r.FailCount[i], r.EvalCount[i], plural)
				} else {
					fmt.Fprintf(&b, "%s    %s: %d %s\n", checkPrefix, check.Description(), r.FailCount[i], plural)
				}
			}
		}
		fmt.Fprintf(&b, "%s\n", titlePrefix)
	}

	prefix := ""
	if brief {
		prefix = "##"
	}
	if config.IsEnabled(CheckHwcCompMatchesRef) {
		fmt.Fprintf(&b, "%sHWC Composition: %d done, %d skipped\n", prefix, r.HwcCompValCount, r.HwcCompValSkipped)
	}
	if config.IsEnabled(CheckSfCompMatchesRef) {
		fmt.Fprintf(&b, "%sSF Composition: %d done, %d skipped\n", prefix, r.SfCompValCount, r.SfCompValSkipped)
	}

	d := r.Duration()
	for i, disp := range r.Displays {
		fmt.Fprintf(&b, "D%d: %sFrames: %d in %3.1fs (%2.1ffps)\n", i, prefix, disp.Frames, d.Seconds(), fps(disp.Frames, d))
		if !brief && disp.DroppedFrames > 0 {
			fmt.Fprintf(&b, "D%d: %d dropped frames (max %d consecutive)\n", i, disp.DroppedFrames, disp.MaxConsecutiveDroppedFrames)
		}
	}

	if !brief {
		r.writePassFail(&b, testName)
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Result) writePassFail(b *strings.Builder, testName string) {
	if r.IsGlobalFail() {
		fmt.Fprintf(b, "*** Test FAILED: %s\n", testName)
	} else {
		fmt.Fprintf(b, "*** Test PASSED: %s\n", testName)
	}
}

// Write renders the report in the named format
func (r *Result) Write(w io.Writer, format string, config *Config, testName string, brief bool) error {
	switch format {
	case "", FormatText:
		return r.WriteText(w, config, testName, brief)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.Summarise(config, testName)); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.Summarise(config, testName)); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
