package logger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Clock abstracts timer creation so tests can simulate time passing
// instead of sleeping.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func RealClock() Clock { return realClock{} }

// Override manages the admin log-level override: the global level can
// be temporarily changed and reverts to the base level after a
// duration. A new override cancels the pending revert rather than
// stacking a second one.
type Override struct {
	mu     sync.Mutex
	clock  Clock
	base   zerolog.Level
	revert Timer
}

func NewOverride(base zerolog.Level, clock Clock) *Override {
	zerolog.SetGlobalLevel(base)
	return &Override{clock: clock, base: base}
}

// Set changes the global log level for the given duration. The
// previous pending revert, if any, is cancelled.
func (o *Override) Set(level zerolog.Level, revertAfter time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.revert != nil {
		o.revert.Stop()
	}

	zerolog.SetGlobalLevel(level)

	o.revert = o.clock.AfterFunc(revertAfter, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		zerolog.SetGlobalLevel(o.base)
		o.revert = nil
	})
}

// Current returns the active global level.
func (o *Override) Current() zerolog.Level {
	return zerolog.GlobalLevel()
}
