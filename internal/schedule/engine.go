package schedule

import (
	"time"

	"github.com/meadowlane/pickups-backend/pkg/enums"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/timeutil"
)

// Engine derives pickup and billing dates from a day-of-week preference and a
// cadence. All arithmetic happens in the business timezone.
type Engine struct {
	loc *time.Location
}

func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = timeutil.LoadLocation("")
	}
	return &Engine{loc: loc}
}

// Location returns the business timezone the engine computes in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Today returns the business-local calendar date of now.
func (e *Engine) Today(now time.Time) time.Time {
	return timeutil.Today(now, e.loc)
}

// NextPickupFromToday computes the first pickup on preferredDay that respects
// the cadence's minimum spacing. The result is never today or in the past:
// when the preferred day is today or already behind in the week, a full week
// is added before the spacing rule is applied.
func (e *Engine) NextPickupFromToday(now time.Time, preferredDay int, freq enums.Frequency) (time.Time, error) {
	if preferredDay < 0 || preferredDay > 6 {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, "preferred day %d out of range (0-6)", preferredDay)
	}
	if !freq.IsValid() {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown frequency %q", freq)
	}

	today := e.Today(now)
	daysUntil := preferredDay - timeutil.DayOfWeek(today, e.loc)
	if daysUntil <= 0 {
		daysUntil += 7
	}
	// Weekly pickups may take the very next occurrence; longer cadences step
	// forward a week at a time until the minimum spacing holds, which keeps
	// the result on the preferred day.
	for daysUntil < freq.MinLeadDays() {
		daysUntil += 7
	}
	return timeutil.AddDays(today, daysUntil), nil
}

// NextPickupAfter advances from a completed pickup by the cadence's fixed
// increment, then snaps forward to the preferred day if the increment landed
// elsewhere (mid-cycle preference changes, DST day drift).
func (e *Engine) NextPickupAfter(previous time.Time, preferredDay int, freq enums.Frequency) time.Time {
	next := timeutil.AddDays(timeutil.Today(previous, e.loc), freq.CycleDays())
	if delta := (preferredDay - timeutil.DayOfWeek(next, e.loc) + 7) % 7; delta != 0 {
		next = timeutil.AddDays(next, delta)
	}
	return next
}

// BillingInstant anchors the time-slot start onto the pickup date and backs
// off the billing lead. Billing always precedes or coincides with pickup for
// non-negative leads.
func (e *Engine) BillingInstant(pickupDate time.Time, slotStart TimeOfDay, leadHours int) time.Time {
	pickupAt := timeutil.At(pickupDate, slotStart.Hour, slotStart.Minute, e.loc)
	return pickupAt.Add(-time.Duration(leadHours) * time.Hour)
}
