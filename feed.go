// Package gtfs loads GTFS schedule datasets into an immutable in-memory
// model, keeps a content-hash-validated binary cache of that model on disk,
// and answers trip-aware itinerary queries against it.
package gtfs

import (
	"sort"
	"strings"
)

// Feed is a fully loaded GTFS dataset. It is immutable once constructed, so
// any number of goroutines may query it concurrently without locking.
type Feed struct {
	Stops  map[string]*Stop
	Routes map[string]*Route
	// Trips is sorted by trip ID.
	Trips    []*Trip
	Services map[string]*Service
	Shapes   map[string]*Shape

	// Derived indexes. Rebuilt after deserialization, never persisted.
	tripsByID    map[string]*Trip
	tripsByStop  map[string][]*Trip
	tripsByRoute map[string][]*Trip
	childStops   map[string][]string
}

func newFeed(stops map[string]*Stop, routes map[string]*Route, trips []*Trip, services map[string]*Service, shapes map[string]*Shape) *Feed {
	f := &Feed{
		Stops:    stops,
		Routes:   routes,
		Trips:    trips,
		Services: services,
		Shapes:   shapes,
	}
	f.buildIndexes()
	return f
}

func (f *Feed) buildIndexes() {
	f.tripsByID = make(map[string]*Trip, len(f.Trips))
	f.tripsByStop = map[string][]*Trip{}
	f.tripsByRoute = map[string][]*Trip{}
	f.childStops = map[string][]string{}
	for _, trip := range f.Trips {
		f.tripsByID[trip.ID] = trip
		f.tripsByRoute[trip.RouteID] = append(f.tripsByRoute[trip.RouteID], trip)
		// A trip may call at the same stop twice; index it once.
		seen := map[string]bool{}
		for i := range trip.StopTimes {
			stopID := trip.StopTimes[i].StopID
			if seen[stopID] {
				continue
			}
			seen[stopID] = true
			f.tripsByStop[stopID] = append(f.tripsByStop[stopID], trip)
		}
	}
	for _, stopID := range sortedKeys(f.Stops) {
		stop := f.Stops[stopID]
		if stop.ParentStation != "" {
			f.childStops[stop.ParentStation] = append(f.childStops[stop.ParentStation], stopID)
		}
	}
}

// Stop returns the stop with the given ID, or nil.
func (f *Feed) Stop(id string) *Stop {
	return f.Stops[id]
}

// Route returns the route with the given ID, or nil.
func (f *Feed) Route(id string) *Route {
	return f.Routes[id]
}

// Trip returns the trip with the given ID, or nil.
func (f *Feed) Trip(id string) *Trip {
	return f.tripsByID[id]
}

// Service returns the service with the given ID, or nil.
func (f *Feed) Service(id string) *Service {
	return f.Services[id]
}

// TripsAt lists the trips calling at the given stop, sorted by trip ID.
// The returned slice must not be modified.
func (f *Feed) TripsAt(stopID string) []*Trip {
	return f.tripsByStop[stopID]
}

// TripsOnRoute lists the trips of one route, sorted by trip ID. The returned
// slice must not be modified.
func (f *Feed) TripsOnRoute(routeID string) []*Trip {
	return f.tripsByRoute[routeID]
}

// ChildStops lists the IDs of the stops whose parent is the given station,
// sorted.
func (f *Feed) ChildStops(stationID string) []string {
	return f.childStops[stationID]
}

// TripShape returns the shape of the trip's path, or nil when the trip or
// its shape is unknown.
func (f *Feed) TripShape(tripID string) *Shape {
	trip := f.tripsByID[tripID]
	if trip == nil || trip.ShapeID == "" {
		return nil
	}
	return f.Shapes[trip.ShapeID]
}

// SearchStops lists the stops whose name contains query, case-insensitively,
// in either the original or any translated form. Results are sorted by stop
// ID and capped at limit when limit is positive.
func (f *Feed) SearchStops(query string, limit int) []*Stop {
	query = strings.ToLower(query)
	var out []*Stop
	for _, id := range sortedKeys(f.Stops) {
		stop := f.Stops[id]
		if !stopNameMatches(stop, query) {
			continue
		}
		out = append(out, stop)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func stopNameMatches(stop *Stop, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(stop.Name), lowerQuery) {
		return true
	}
	for _, translated := range stop.Translations {
		if strings.Contains(strings.ToLower(translated), lowerQuery) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
