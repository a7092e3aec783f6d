package display

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// StallPoint names an operation that can be deliberately delayed
type StallPoint int

const (
	StallDPMS StallPoint = iota
	StallSetDisplay
	StallPageFlip
	StallSetPlane
	StallGemWait
	NumStallPoints
)

var stallNames = [NumStallPoints]string{
	StallDPMS:       "dpms",
	StallSetDisplay: "setdisplay",
	StallPageFlip:   "pageflip",
	StallSetPlane:   "setplane",
	StallGemWait:    "gemwait",
}

func (p StallPoint) String() string {
	if p >= 0 && p < NumStallPoints {
		return stallNames[p]
	}
	return fmt.Sprintf("StallPoint(%d)", int(p))
}

// ParseStallPoint accepts a stall point name, case-insensitively
func ParseStallPoint(s string) (StallPoint, error) {
	for i, name := range stallNames {
		if strings.EqualFold(s, name) {
			return StallPoint(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStall, s)
}

// Stall delays a fraction of calls at one point by a fixed duration,
// releasing the caller's lock while it sleeps
type Stall struct {
	Name     string
	Duration time.Duration
	Pct      float64

	rand  func() float64
	sleep func(time.Duration)
}

// NewStall creates a stall firing on pct percent of calls
func NewStall(name string, d time.Duration, pct float64) *Stall {
	if d == 0 {
		pct = 0
	}
	return &Stall{
		Name:     name,
		Duration: d,
		Pct:      pct,
		rand:     rand.Float64,
		sleep:    time.Sleep,
	}
}

// ParseStall reads a specification of the form "[<pct>%] [<n><unit>]",
// with units s, ms, us or ns. The percentage defaults to 100; a zero
// duration disables the stall.
func ParseStall(name, spec string) (*Stall, error) {
	pct := 100.0
	var d time.Duration

	rest := strings.TrimSpace(spec)
	for rest != "" {
		end := strings.IndexFunc(rest, func(r rune) bool {
			return !unicode.IsDigit(r) && r != '.' && r != '-' && r != '+'
		})
		if end == 0 {
			return nil, fmt.Errorf("%w: %q", ErrBadStall, spec)
		}
		if end < 0 {
			end = len(rest)
		}
		n, err := strconv.ParseFloat(rest[:end], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrBadStall, spec, err)
		}
		rest = strings.TrimLeft(rest[end:], " \t")

		unitEnd := strings.IndexFunc(rest, unicode.IsSpace)
		if unitEnd < 0 {
			unitEnd = len(rest)
		}
		unit := rest[:unitEnd]
		rest = strings.TrimSpace(rest[unitEnd:])

		switch unit {
		case "%":
			if n < 0 || n > 100 {
				return nil, fmt.Errorf("%w: %v", ErrBadPercentage, n)
			}
			pct = n
		case "s":
			d = time.Duration(n * float64(time.Second))
		case "ms":
			d = time.Duration(n * float64(time.Millisecond))
		case "us":
			d = time.Duration(n * float64(time.Microsecond))
		case "ns":
			d = time.Duration(n)
		default:
			return nil, fmt.Errorf("%w: %q", ErrBadStallUnit, unit)
		}
	}
	return NewStall(name, d, pct), nil
}

// Enabled reports whether the stall ever fires
func (s *Stall) Enabled() bool {
	return s != nil && s.Pct > 0 && s.Duration > 0
}

// Do sleeps with the configured probability. If l is not nil it is released
// for the duration of the sleep and reacquired before Do returns.
func (s *Stall) Do(l sync.Locker) bool {
	if !s.Enabled() {
		return false
	}
	if s.rand()*100 >= s.Pct {
		return false
	}
	if l != nil {
		l.Unlock()
		defer l.Lock()
	}
	s.sleep(s.Duration)
	return true
}

func (s *Stall) String() string {
	if s == nil {
		return "none"
	}
	return fmt.Sprintf("%s %g%% %v", s.Name, s.Pct, s.Duration)
}

// Stalls holds the configured stall for each point
type Stalls [NumStallPoints]*Stall

// Do runs the stall for point p, if one is configured
func (ss *Stalls) Do(p StallPoint, l sync.Locker) bool {
	if ss == nil || p < 0 || p >= NumStallPoints {
		return false
	}
	return ss[p].Do(l)
}
