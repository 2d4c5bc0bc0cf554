package gtfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newIndexFeed builds a small feed directly, bypassing the parser. Trips are
// listed in ID order, matching the loader's output.
func newIndexFeed() *Feed {
	stops := map[string]*Stop{
		"airport": {ID: "airport", Name: "Airport"},
		"central": {ID: "central", Name: "Central", Translations: map[string]string{"nl": "Centraal"}},
		"harbor":  {ID: "harbor", Name: "Harbor"},
		"hub":     {ID: "hub", Name: "Hub", Type: StopType_Station},
		"hub_1":   {ID: "hub_1", Name: "Hub platform 1", Type: StopType_Platform, ParentStation: "hub"},
		"hub_2":   {ID: "hub_2", Name: "Hub platform 2", Type: StopType_Platform, ParentStation: "hub"},
	}
	routes := map[string]*Route{
		"blue": {ID: "blue", Type: RouteType_Ferry},
		"red":  {ID: "red", Type: RouteType_Subway},
	}
	services := map[string]*Service{
		"daily": {ID: "daily"},
	}
	trips := []*Trip{
		{ID: "t1", RouteID: "red", ServiceID: "daily", ShapeID: "s1", StopTimes: []StopTime{
			{StopID: "central", StopSequence: 1},
			{StopID: "harbor", StopSequence: 2},
			{StopID: "airport", StopSequence: 3},
		}},
		{ID: "t2", RouteID: "red", ServiceID: "daily", ShapeID: "missing", StopTimes: []StopTime{
			{StopID: "central", StopSequence: 1},
			{StopID: "harbor", StopSequence: 2},
		}},
		{ID: "t3", RouteID: "blue", ServiceID: "daily", StopTimes: []StopTime{
			{StopID: "harbor", StopSequence: 1},
			{StopID: "central", StopSequence: 2},
			{StopID: "harbor", StopSequence: 3},
		}},
	}
	shapes := map[string]*Shape{
		"s1": {ID: "s1", Points: []ShapePoint{{Latitude: 1, Longitude: 1}, {Latitude: 2, Longitude: 2}}},
	}
	return newFeed(stops, routes, trips, services, shapes)
}

func TestFeedIndexes(t *testing.T) {
	feed := newIndexFeed()

	if got := feed.Trip("t2"); got == nil || got.ID != "t2" {
		t.Errorf("Trip(t2) = %v, want the t2 trip", got)
	}
	if got := feed.Trip("ghost"); got != nil {
		t.Errorf("Trip(ghost) = %v, want nil", got)
	}
	if got := feed.Stop("harbor"); got == nil || got.Name != "Harbor" {
		t.Errorf("Stop(harbor) = %v, want the harbor stop", got)
	}
	if got := feed.Route("blue"); got == nil || got.Type != RouteType_Ferry {
		t.Errorf("Route(blue) = %v, want the blue route", got)
	}
	if got := feed.Service("daily"); got == nil {
		t.Error("Service(daily) = nil, want the daily service")
	}

	// t3 calls at harbor twice but is indexed there once.
	if diff := cmp.Diff(tripIDs(feed.TripsAt("harbor")), []string{"t1", "t2", "t3"}); diff != "" {
		t.Errorf("TripsAt(harbor) diff (-got, +want):\n%s", diff)
	}
	if got := feed.TripsAt("ghost"); got != nil {
		t.Errorf("TripsAt(ghost) = %v, want nil", got)
	}
	if diff := cmp.Diff(tripIDs(feed.TripsOnRoute("red")), []string{"t1", "t2"}); diff != "" {
		t.Errorf("TripsOnRoute(red) diff (-got, +want):\n%s", diff)
	}
	if diff := cmp.Diff(feed.ChildStops("hub"), []string{"hub_1", "hub_2"}); diff != "" {
		t.Errorf("ChildStops(hub) diff (-got, +want):\n%s", diff)
	}
	if got := feed.ChildStops("central"); got != nil {
		t.Errorf("ChildStops(central) = %v, want nil", got)
	}
}

func TestTripShape(t *testing.T) {
	feed := newIndexFeed()
	if got := feed.TripShape("t1"); got == nil || got.ID != "s1" {
		t.Errorf("TripShape(t1) = %v, want shape s1", got)
	}
	// t2 references a shape the dataset does not carry.
	if got := feed.TripShape("t2"); got != nil {
		t.Errorf("TripShape(t2) = %v, want nil", got)
	}
	// t3 has no shape at all.
	if got := feed.TripShape("t3"); got != nil {
		t.Errorf("TripShape(t3) = %v, want nil", got)
	}
	if got := feed.TripShape("ghost"); got != nil {
		t.Errorf("TripShape(ghost) = %v, want nil", got)
	}
}

func TestSearchStops(t *testing.T) {
	feed := newIndexFeed()
	for _, tc := range []struct {
		desc  string
		query string
		limit int
		want  []string
	}{
		{"exact name", "Harbor", 0, []string{"harbor"}},
		{"case insensitive", "HUB", 0, []string{"hub", "hub_1", "hub_2"}},
		{"substring", "platform", 0, []string{"hub_1", "hub_2"}},
		{"translated name", "centraal", 0, []string{"central"}},
		{"limit caps results", "hub", 2, []string{"hub", "hub_1"}},
		{"no match", "nowhere", 0, nil},
		{"empty query matches all", "", 0, []string{"airport", "central", "harbor", "hub", "hub_1", "hub_2"}},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			got := stopIDs(feed.SearchStops(tc.query, tc.limit))
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Errorf("SearchStops(%q, %d) diff (-got, +want):\n%s", tc.query, tc.limit, diff)
			}
		})
	}
}

func tripIDs(trips []*Trip) []string {
	if len(trips) == 0 {
		return nil
	}
	ids := make([]string, len(trips))
	for i, trip := range trips {
		ids[i] = trip.ID
	}
	return ids
}

func stopIDs(stops []*Stop) []string {
	if len(stops) == 0 {
		return nil
	}
	ids := make([]string, len(stops))
	for i, stop := range stops {
		ids[i] = stop.ID
	}
	return ids
}
