package logger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// fakeClock hands out timers that only fire when told to.
type fakeClock struct {
	timers []*fakeTimer
}

type fakeTimer struct {
	f       func()
	stopped bool
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) fire() {
	if !t.stopped {
		t.f()
	}
}

func TestOverrideRevertsAfterDuration(t *testing.T) {
	clock := &fakeClock{}
	o := NewOverride(zerolog.InfoLevel, clock)

	o.Set(zerolog.DebugLevel, time.Minute)
	assert.Equal(t, zerolog.DebugLevel, o.Current())

	clock.timers[0].fire()
	assert.Equal(t, zerolog.InfoLevel, o.Current())
}

func TestOverrideReplacesPendingRevert(t *testing.T) {
	clock := &fakeClock{}
	o := NewOverride(zerolog.InfoLevel, clock)

	o.Set(zerolog.DebugLevel, time.Minute)
	o.Set(zerolog.TraceLevel, time.Hour)

	// The first revert was cancelled; firing it must not clobber the
	// second override.
	assert.True(t, clock.timers[0].stopped)
	clock.timers[0].fire()
	assert.Equal(t, zerolog.TraceLevel, o.Current())

	clock.timers[1].fire()
	assert.Equal(t, zerolog.InfoLevel, o.Current())
}
