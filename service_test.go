package gtfs

import (
	"testing"
	"time"
)

func TestServiceRunsOn(t *testing.T) {
	pattern := Service{
		ID:        "weekday",
		Monday:    true,
		Wednesday: true,
		StartDate: time.Date(2022, 5, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2022, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	withExceptions := pattern
	withExceptions.AddedDates = []time.Time{time.Date(2022, 4, 20, 0, 0, 0, 0, time.UTC)}
	withExceptions.RemovedDates = []time.Time{may4}
	exceptionsOnly := Service{
		ID:         "special",
		AddedDates: []time.Time{may4},
	}
	conflicting := Service{
		ID:           "conflicting",
		AddedDates:   []time.Time{may4},
		RemovedDates: []time.Time{may4},
	}
	for _, tc := range []struct {
		desc    string
		service Service
		date    time.Time
		want    bool
	}{
		{
			desc:    "weekday enabled",
			service: pattern,
			date:    time.Date(2022, 5, 2, 0, 0, 0, 0, time.UTC), // Monday
			want:    true,
		},
		{
			desc:    "weekday disabled",
			service: pattern,
			date:    time.Date(2022, 5, 3, 0, 0, 0, 0, time.UTC), // Tuesday
			want:    false,
		},
		{
			desc:    "before validity range",
			service: pattern,
			date:    time.Date(2022, 4, 25, 0, 0, 0, 0, time.UTC), // Monday
			want:    false,
		},
		{
			desc:    "after validity range",
			service: pattern,
			date:    time.Date(2022, 6, 6, 0, 0, 0, 0, time.UTC), // Monday
			want:    false,
		},
		{
			desc:    "range start is inclusive",
			service: pattern,
			date:    time.Date(2022, 5, 2, 0, 0, 0, 0, time.UTC),
			want:    true,
		},
		{
			desc:    "range end is inclusive",
			service: pattern,
			date:    time.Date(2022, 5, 30, 0, 0, 0, 0, time.UTC), // Monday
			want:    true,
		},
		{
			desc:    "time of day ignored",
			service: pattern,
			date:    time.Date(2022, 5, 2, 23, 59, 59, 0, time.UTC),
			want:    true,
		},
		{
			desc:    "removed date inside range",
			service: withExceptions,
			date:    may4, // Wednesday, normally enabled
			want:    false,
		},
		{
			desc:    "added date outside range",
			service: withExceptions,
			date:    time.Date(2022, 4, 20, 0, 0, 0, 0, time.UTC),
			want:    true,
		},
		{
			desc:    "exception-only service runs on added date",
			service: exceptionsOnly,
			date:    may4,
			want:    true,
		},
		{
			desc:    "exception-only service has no other days",
			service: exceptionsOnly,
			date:    time.Date(2022, 5, 5, 0, 0, 0, 0, time.UTC),
			want:    false,
		},
		{
			desc:    "removal wins over addition",
			service: conflicting,
			date:    may4,
			want:    false,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			if got := tc.service.RunsOn(tc.date); got != tc.want {
				t.Errorf("RunsOn(%s) = %t, want %t", tc.date.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func TestFeedServiceRunsOn(t *testing.T) {
	feed := newFeed(nil, nil, nil, map[string]*Service{
		"special": {ID: "special", AddedDates: []time.Time{may4}},
	}, nil)
	if !feed.ServiceRunsOn("special", may4) {
		t.Error("ServiceRunsOn(special, may4) = false, want true")
	}
	if feed.ServiceRunsOn("special", may7) {
		t.Error("ServiceRunsOn(special, may7) = true, want false")
	}
	if feed.ServiceRunsOn("ghost", may4) {
		t.Error("ServiceRunsOn(ghost, may4) = true, want false")
	}
}
