package cashbox

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// CountStatus is the state of an in-progress reconciliation.
//
// COUNTING accepts a single submission of counted amounts. A clean
// submission completes immediately; a discrepant one moves to
// AWAITING_AUTHORIZATION and stays there until a supervisor signs off.
// There is no path back from AWAITING_AUTHORIZATION except authorization:
// once a discrepancy is on the table it must be acknowledged, not abandoned.
type CountStatus string

const (
	StatusCounting              CountStatus = "COUNTING"
	StatusAwaitingAuthorization CountStatus = "AWAITING_AUTHORIZATION"
	StatusComplete              CountStatus = "COMPLETE"
)

// InstrumentResult is the reconciliation outcome for one instrument.
type InstrumentResult struct {
	Instrument domain.Instrument `json:"instrument"`
	Expected   decimal.Decimal   `json:"expected"`
	Counted    decimal.Decimal   `json:"counted"`
	Difference decimal.Decimal   `json:"difference"`
	Discrepant bool              `json:"discrepant"`
}

// CountSession tracks one reconciliation from first count to completion.
// Sessions live in memory: an interrupted count simply starts over, the
// books only change when a session completes.
type CountSession struct {
	DrawerID  string
	StartedBy string
	StartedAt time.Time
	Status    CountStatus

	Results    []InstrumentResult
	Discrepant bool
	Note       *string
}

// ValidationError signals a malformed count submission, as opposed to an
// infrastructure failure. Handlers map it to a 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// EvaluateCounts compares counted amounts against the drawer's expected
// balances. Every instrument must be counted in the same submission; a
// partial count is rejected before any comparison happens.
//
// An instrument is discrepant when |counted - expected| exceeds the
// tolerance. The overall result is discrepant if any instrument is.
func EvaluateCounts(drawer *Drawer, counted map[domain.Instrument]decimal.Decimal) ([]InstrumentResult, bool, error) {
	var missing []string
	for _, instrument := range domain.Instruments() {
		if _, ok := counted[instrument]; !ok {
			missing = append(missing, string(instrument))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, false, validationErrorf("count submission is missing instruments: %v", missing)
	}
	for instrument := range counted {
		if _, err := domain.ParseInstrument(string(instrument)); err != nil {
			return nil, false, validationErrorf("count submission has unknown instrument %q", instrument)
		}
	}

	results := make([]InstrumentResult, 0, len(domain.Instruments()))
	discrepant := false
	for _, instrument := range domain.Instruments() {
		expected := money.Round(drawer.ExpectedFor(instrument))
		count := money.Round(counted[instrument])
		diff := count.Sub(expected)

		res := InstrumentResult{
			Instrument: instrument,
			Expected:   expected,
			Counted:    count,
			Difference: diff,
			Discrepant: !money.WithinTolerance(diff),
		}
		if res.Discrepant {
			discrepant = true
		}
		results = append(results, res)
	}

	return results, discrepant, nil
}

// submit transitions a session from COUNTING once counts are evaluated.
func (s *CountSession) submit(results []InstrumentResult, discrepant bool, note *string) error {
	if s.Status != StatusCounting {
		return validationErrorf("counts already submitted for drawer %s (status %s)", s.DrawerID, s.Status)
	}
	s.Results = results
	s.Discrepant = discrepant
	s.Note = note
	if discrepant {
		s.Status = StatusAwaitingAuthorization
	} else {
		s.Status = StatusComplete
	}
	return nil
}

// authorize transitions a discrepant session to COMPLETE.
func (s *CountSession) authorize() error {
	if s.Status != StatusAwaitingAuthorization {
		return validationErrorf("drawer %s has no discrepancy awaiting authorization (status %s)", s.DrawerID, s.Status)
	}
	s.Status = StatusComplete
	return nil
}
