//go:build unit

package display

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStall(t *testing.T) {
	tests := []struct {
		spec     string
		pct      float64
		duration time.Duration
		enabled  bool
	}{
		{"2s", 100, 2 * time.Second, true},
		{"50% 10ms", 50, 10 * time.Millisecond, true},
		{"1.5ms 25%", 25, 1500 * time.Microsecond, true},
		{"100us", 100, 100 * time.Microsecond, true},
		{"500 ns", 100, 500 * time.Nanosecond, true},
		{"", 0, 0, false},
		{"0% 1s", 0, time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseStall("test", tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.pct, s.Pct)
			assert.Equal(t, tt.duration, s.Duration)
			if got := s.Enabled(); got != tt.enabled {
				t.Errorf("Enabled() = %v, expected %v", got, tt.enabled)
			}
		})
	}
}

func TestParseStallErrors(t *testing.T) {
	tests := []struct {
		spec string
		want error
	}{
		{"10x", ErrBadStallUnit},
		{"150%", ErrBadPercentage},
		{"ms", ErrBadStall},
	}
	for _, tt := range tests {
		_, err := ParseStall("test", tt.spec)
		assert.ErrorIs(t, err, tt.want, "spec %q", tt.spec)
	}
}

func TestParseStallPoint(t *testing.T) {
	p, err := ParseStallPoint("PageFlip")
	require.NoError(t, err)
	assert.Equal(t, StallPageFlip, p)
	assert.Equal(t, "gemwait", StallGemWait.String())

	_, err = ParseStallPoint("vsync")
	assert.ErrorIs(t, err, ErrUnknownStall)
}

type countingLocker struct {
	sync.Mutex
	unlocks int
}

func (l *countingLocker) Unlock() {
	l.unlocks++
	l.Mutex.Unlock()
}

func TestStallDo(t *testing.T) {
	s := NewStall("setplane", 5*time.Millisecond, 30)
	var slept time.Duration
	s.sleep = func(d time.Duration) { slept += d }

	l := &countingLocker{}
	l.Lock()

	s.rand = func() float64 { return 0.5 }
	assert.False(t, s.Do(l))
	assert.Equal(t, time.Duration(0), slept)

	s.rand = func() float64 { return 0.1 }
	assert.True(t, s.Do(l))
	assert.Equal(t, 5*time.Millisecond, slept)
	assert.Equal(t, 1, l.unlocks)

	// Still held by us after the stall
	assert.False(t, l.TryLock())
	l.Unlock()
}

func TestStallsDo(t *testing.T) {
	var ss Stalls
	assert.False(t, ss.Do(StallDPMS, nil))

	s := NewStall("dpms", time.Millisecond, 100)
	calls := 0
	s.sleep = func(time.Duration) { calls++ }
	ss[StallDPMS] = s

	assert.True(t, ss.Do(StallDPMS, nil))
	assert.False(t, ss.Do(StallPageFlip, nil))
	assert.False(t, ss.Do(NumStallPoints, nil))
	assert.Equal(t, 1, calls)
}
