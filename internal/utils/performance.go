// Package utils holds small shared helpers.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Timer measures operation duration and logs it on Stop. Background jobs
// use it to flag runs that exceed their expected budget.
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer starts a timer for the named operation.
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
	}
}

// Stop stops the timer and logs the duration. Runs over 30s are warned
// about: the drain job shares a minute-wide slot and must not pile up.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)

	t.log.Debug().
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Msg("Operation completed")

	if duration > 30*time.Second {
		t.log.Warn().
			Str("operation", t.name).
			Dur("duration", duration).
			Msg("Slow operation detected")
	}
	return duration
}
