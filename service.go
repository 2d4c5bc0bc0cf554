package gtfs

import "time"

// Service describes the days on which a set of trips runs: a weekly pattern
// bounded by a validity range, adjusted by per-date exceptions.
type Service struct {
	ID        string
	Monday    bool
	Tuesday   bool
	Wednesday bool
	Thursday  bool
	Friday    bool
	Saturday  bool
	Sunday    bool
	// StartDate and EndDate bound the weekly pattern, inclusive, at UTC
	// midnight. Both are zero for services defined only by exceptions.
	StartDate time.Time
	EndDate   time.Time
	// AddedDates and RemovedDates override the weekly pattern for their
	// dates.
	AddedDates   []time.Time
	RemovedDates []time.Time
}

// RunsOn reports whether the service operates on the given date. Exception
// dates win over the weekly pattern; otherwise the date's weekday must be
// enabled and the date must fall inside [StartDate, EndDate]. Only the
// calendar day of date is considered.
func (s *Service) RunsOn(date time.Time) bool {
	for _, d := range s.RemovedDates {
		if sameDay(d, date) {
			return false
		}
	}
	for _, d := range s.AddedDates {
		if sameDay(d, date) {
			return true
		}
	}
	if !s.runsOnWeekday(date.Weekday()) {
		return false
	}
	day := truncateToDay(date)
	return !day.Before(s.StartDate) && !day.After(s.EndDate)
}

func (s *Service) runsOnWeekday(d time.Weekday) bool {
	switch d {
	case time.Monday:
		return s.Monday
	case time.Tuesday:
		return s.Tuesday
	case time.Wednesday:
		return s.Wednesday
	case time.Thursday:
		return s.Thursday
	case time.Friday:
		return s.Friday
	case time.Saturday:
		return s.Saturday
	case time.Sunday:
		return s.Sunday
	}
	return false
}

// ServiceRunsOn reports whether the named service operates on the given
// date. Unknown service IDs never run.
func (f *Feed) ServiceRunsOn(serviceID string, date time.Time) bool {
	service, ok := f.Services[serviceID]
	if !ok {
		return false
	}
	return service.RunsOn(date)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
