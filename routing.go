package gtfs

import (
	"sort"
	"time"
)

// Itinerary is a single-trip journey between two stops.
type Itinerary struct {
	TripID            string
	RouteID           string
	ServiceID         string
	ShapeID           string
	OriginStopID      string
	DestinationStopID string
	// Departure is the origin departure offset from the start of the
	// service day. Arrival is the destination arrival offset, shifted
	// forward a day when the dataset wrapped an overnight arrival back past
	// midnight, so Arrival - Departure is always the positive Duration.
	Departure time.Duration
	Arrival   time.Duration
	Duration  time.Duration
	// StopTimes covers the traveled leg, origin and destination inclusive.
	StopTimes []StopTime
}

// FindItineraries lists the single-trip journeys from originStopID to
// destStopID, ordered by departure time, ties broken by trip ID. The
// destination must be called strictly after the origin within the trip;
// trips that visit the destination only before the origin do not qualify.
//
// A non-nil date keeps only trips whose service runs on that date; a nil
// date ignores calendars entirely.
//
// Stop times of 24 hours or more are post-midnight service per GTFS. When a
// dataset wraps such times past 00:00 instead, the arrival is treated as
// next-day so overnight durations stay positive.
func (f *Feed) FindItineraries(originStopID, destStopID string, date *time.Time) []Itinerary {
	var out []Itinerary
	for _, trip := range f.tripsByStop[originStopID] {
		if date != nil && !f.ServiceRunsOn(trip.ServiceID, *date) {
			continue
		}
		if itinerary, ok := tripItinerary(trip, originStopID, destStopID); ok {
			out = append(out, itinerary)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Departure != out[j].Departure {
			return out[i].Departure < out[j].Departure
		}
		return out[i].TripID < out[j].TripID
	})
	return out
}

// tripItinerary extracts the leg from the trip's first call at originID to
// its next call at destID.
func tripItinerary(trip *Trip, originID, destID string) (Itinerary, bool) {
	originIdx := -1
	for i := range trip.StopTimes {
		if trip.StopTimes[i].StopID == originID {
			originIdx = i
			break
		}
	}
	if originIdx < 0 {
		return Itinerary{}, false
	}
	destIdx := -1
	for i := originIdx + 1; i < len(trip.StopTimes); i++ {
		if trip.StopTimes[i].StopID == destID {
			destIdx = i
			break
		}
	}
	if destIdx < 0 {
		return Itinerary{}, false
	}
	origin := trip.StopTimes[originIdx]
	dest := trip.StopTimes[destIdx]
	arrival := dest.ArrivalTime
	if arrival < origin.DepartureTime {
		// The dataset wrapped an overnight arrival past midnight.
		arrival += 24 * time.Hour
	}
	leg := make([]StopTime, destIdx-originIdx+1)
	copy(leg, trip.StopTimes[originIdx:destIdx+1])
	return Itinerary{
		TripID:            trip.ID,
		RouteID:           trip.RouteID,
		ServiceID:         trip.ServiceID,
		ShapeID:           trip.ShapeID,
		OriginStopID:      originID,
		DestinationStopID: destID,
		Departure:         origin.DepartureTime,
		Arrival:           arrival,
		Duration:          arrival - origin.DepartureTime,
		StopTimes:         leg,
	}, true
}

// Destinations lists the distinct stops reachable from originStopID strictly
// after it on any trip, sorted by stop ID. The origin itself is excluded
// even when a trip loops back to it.
func (f *Feed) Destinations(originStopID string) []*Stop {
	reachable := map[string]bool{}
	for _, trip := range f.tripsByStop[originStopID] {
		originIdx := -1
		for i := range trip.StopTimes {
			if trip.StopTimes[i].StopID == originStopID {
				originIdx = i
				break
			}
		}
		if originIdx < 0 {
			continue
		}
		for i := originIdx + 1; i < len(trip.StopTimes); i++ {
			reachable[trip.StopTimes[i].StopID] = true
		}
	}
	delete(reachable, originStopID)
	return f.stopsByIDs(reachable)
}

// Origins lists the distinct stops from which destStopID is reachable, the
// mirror of Destinations: every stop called strictly before the destination
// on any trip, sorted by stop ID.
func (f *Feed) Origins(destStopID string) []*Stop {
	reaching := map[string]bool{}
	for _, trip := range f.tripsByStop[destStopID] {
		destIdx := -1
		for i := len(trip.StopTimes) - 1; i >= 0; i-- {
			if trip.StopTimes[i].StopID == destStopID {
				destIdx = i
				break
			}
		}
		for i := 0; i < destIdx; i++ {
			reaching[trip.StopTimes[i].StopID] = true
		}
	}
	delete(reaching, destStopID)
	return f.stopsByIDs(reaching)
}

func (f *Feed) stopsByIDs(ids map[string]bool) []*Stop {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Stop, 0, len(ids))
	for _, id := range sortedKeys(ids) {
		if stop := f.Stops[id]; stop != nil {
			out = append(out, stop)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
