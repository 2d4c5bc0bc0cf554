package gtfs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/transitboard/gtfs/constants"
	"github.com/transitboard/gtfs/internal/pool"
	"github.com/transitboard/gtfs/performance"
	"github.com/transitboard/gtfs/warnings"
)

// Trip is one scheduled run of a vehicle along a route.
type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	ShapeID     string
	Headsign    string
	DirectionID DirectionID
	// StopTimes is ordered by stop sequence. The first and last entries are
	// the trip's origin and destination.
	StopTimes []StopTime
}

// StopTime is one scheduled call of a trip at a stop. Times are offsets from
// the start of the service day; values of 24 hours or more mean post-midnight
// service on the same service day.
type StopTime struct {
	StopID        string
	ArrivalTime   time.Duration
	DepartureTime time.Duration
	StopSequence  int
	Headsign      string
}

// rawTrip carries one trips.txt row plus its unparsed stop_times rows into
// batch assembly.
type rawTrip struct {
	id          string
	routeID     string
	serviceID   string
	shapeID     string
	headsign    string
	directionID DirectionID
	stopTimes   []rawStopTime
}

type rawStopTime struct {
	row       int
	stopID    string
	arrival   string
	departure string
	sequence  string
	headsign  string
}

// loadTrips reads trips.txt and stop_times.txt and assembles the trips on a
// worker pool. Raw rows are grouped by trip single-threaded; per-trip parsing
// and validation runs in parallel batches whose outputs merge in batch order,
// so the result does not depend on scheduling.
func loadTrips(ctx context.Context, dir string, workers int, stops map[string]*Stop, routes map[string]*Route, services map[string]*Service, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) ([]*Trip, error) {
	raws, err := loadRawTrips(dir, routes, services, metrics, warn)
	if err != nil {
		return nil, err
	}
	if err := loadRawStopTimes(dir, stops, raws, metrics, warn); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stopTimer := metrics.Start("assemble trips")
	defer stopTimer()
	type assembled struct {
		trip     *Trip
		warnings []warnings.StaticWarning
	}
	ordered := make([]*rawTrip, 0, len(raws.order))
	for _, id := range raws.order {
		ordered = append(ordered, raws.byID[id])
	}
	outs, err := pool.Map(ctx, workers, ordered, func(batch []*rawTrip) []assembled {
		out := make([]assembled, 0, len(batch))
		for _, raw := range batch {
			trip, ws := raw.assemble()
			out = append(out, assembled{trip: trip, warnings: ws})
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	var trips []*Trip
	for _, a := range outs {
		for _, w := range a.warnings {
			warn(w)
		}
		if a.trip != nil {
			trips = append(trips, a.trip)
		}
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].ID < trips[j].ID })
	return trips, nil
}

// rawTrips keeps trips.txt file order so warnings and batches are
// deterministic.
type rawTrips struct {
	byID  map[string]*rawTrip
	order []string
}

func loadRawTrips(dir string, routes map[string]*Route, services map[string]*Service, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) (*rawTrips, error) {
	stopTimer := metrics.Start("parse " + string(constants.TripsFile))
	defer stopTimer()
	table, err := openTable(dir, constants.TripsFile, true, warn)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	idCol := table.Required("trip_id")
	routeCol := table.Required("route_id")
	serviceCol := table.Required("service_id")
	headsignCol := table.Optional("trip_headsign")
	directionCol := table.Optional("direction_id")
	shapeCol := table.Optional("shape_id")
	if err := requireColumns(table); err != nil {
		return nil, err
	}

	raws := &rawTrips{byID: map[string]*rawTrip{}}
	for table.Next() {
		id := idCol.Read()
		routeID := routeCol.Read()
		serviceID := serviceCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.TripsFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		if _, ok := raws.byID[id]; ok {
			warn(warnings.RowSkipped{
				Table:  constants.TripsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("duplicate trip_id %q", id),
			})
			continue
		}
		if _, ok := routes[routeID]; !ok {
			warn(warnings.RowSkipped{
				Table:  constants.TripsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("unknown route_id %q", routeID),
			})
			continue
		}
		if _, ok := services[serviceID]; !ok {
			warn(warnings.RowSkipped{
				Table:  constants.TripsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("unknown service_id %q", serviceID),
			})
			continue
		}
		raw := &rawTrip{
			id:          id,
			routeID:     routeID,
			serviceID:   serviceID,
			shapeID:     shapeCol.Read(),
			headsign:    headsignCol.Read(),
			directionID: parseDirectionID(directionCol.Read()),
		}
		raws.byID[id] = raw
		raws.order = append(raws.order, id)
	}
	if err := requiredTableErr(table); err != nil {
		return nil, err
	}
	return raws, nil
}

func loadRawStopTimes(dir string, stops map[string]*Stop, raws *rawTrips, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) error {
	stopTimer := metrics.Start("parse " + string(constants.StopTimesFile))
	defer stopTimer()
	table, err := openTable(dir, constants.StopTimesFile, true, warn)
	if err != nil {
		return err
	}
	defer table.Close()

	tripCol := table.Required("trip_id")
	stopCol := table.Required("stop_id")
	seqCol := table.Required("stop_sequence")
	arrivalCol := table.Required("arrival_time")
	departureCol := table.Required("departure_time")
	headsignCol := table.Optional("stop_headsign")
	if err := requireColumns(table); err != nil {
		return err
	}

	for table.Next() {
		tripID := tripCol.Read()
		stopID := stopCol.Read()
		sequence := seqCol.Read()
		arrival := arrivalCol.Read()
		departure := departureCol.Read()
		// Either clock value may be empty on its own; the other stands in
		// for it. Everything else in the row is structural.
		var structural []string
		timesMissing := 0
		for _, key := range table.MissingRowKeys() {
			if key == "arrival_time" || key == "departure_time" {
				timesMissing++
				continue
			}
			structural = append(structural, key)
		}
		if len(structural) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.StopTimesFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(structural, ", "),
			})
			continue
		}
		if timesMissing == 2 {
			warn(warnings.RowSkipped{
				Table:  constants.StopTimesFile,
				Row:    table.RowNumber(),
				Reason: "missing arrival_time and departure_time",
			})
			continue
		}
		if arrival == "" {
			arrival = departure
		}
		if departure == "" {
			departure = arrival
		}
		raw, ok := raws.byID[tripID]
		if !ok {
			warn(warnings.RowSkipped{
				Table:  constants.StopTimesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("unknown trip_id %q", tripID),
			})
			continue
		}
		if _, ok := stops[stopID]; !ok {
			warn(warnings.RowSkipped{
				Table:  constants.StopTimesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("unknown stop_id %q", stopID),
			})
			continue
		}
		raw.stopTimes = append(raw.stopTimes, rawStopTime{
			row:       table.RowNumber(),
			stopID:    stopID,
			arrival:   arrival,
			departure: departure,
			sequence:  sequence,
			headsign:  headsignCol.Read(),
		})
	}
	return requiredTableErr(table)
}

// assemble parses and validates one trip's stop times. It is called from
// pool workers and must not touch shared state.
func (r *rawTrip) assemble() (*Trip, []warnings.StaticWarning) {
	var ws []warnings.StaticWarning
	trip := &Trip{
		ID:          r.id,
		RouteID:     r.routeID,
		ServiceID:   r.serviceID,
		ShapeID:     r.shapeID,
		Headsign:    r.headsign,
		DirectionID: r.directionID,
	}
	var stopTimes []StopTime
	for _, raw := range r.stopTimes {
		sequence, err := strconv.Atoi(strings.TrimSpace(raw.sequence))
		if err != nil || sequence < 0 {
			ws = append(ws, warnings.RowSkipped{
				Table:  constants.StopTimesFile,
				Row:    raw.row,
				Reason: fmt.Sprintf("invalid stop_sequence %q", raw.sequence),
			})
			continue
		}
		arrival, err := parseStopTimeDuration(raw.arrival)
		if err != nil {
			ws = append(ws, warnings.RowSkipped{
				Table:  constants.StopTimesFile,
				Row:    raw.row,
				Reason: fmt.Sprintf("invalid arrival_time %q", raw.arrival),
			})
			continue
		}
		departure, err := parseStopTimeDuration(raw.departure)
		if err != nil {
			ws = append(ws, warnings.RowSkipped{
				Table:  constants.StopTimesFile,
				Row:    raw.row,
				Reason: fmt.Sprintf("invalid departure_time %q", raw.departure),
			})
			continue
		}
		stopTimes = append(stopTimes, StopTime{
			StopID:        raw.stopID,
			ArrivalTime:   arrival,
			DepartureTime: departure,
			StopSequence:  sequence,
			Headsign:      raw.headsign,
		})
	}
	// Out-of-order rows are repaired by sorting; duplicated sequence numbers
	// make the whole trip unusable.
	sort.SliceStable(stopTimes, func(i, j int) bool {
		return stopTimes[i].StopSequence < stopTimes[j].StopSequence
	})
	for i := 1; i < len(stopTimes); i++ {
		if stopTimes[i].StopSequence == stopTimes[i-1].StopSequence {
			ws = append(ws, warnings.TripSkipped{
				TripID: r.id,
				Reason: fmt.Sprintf("duplicate stop_sequence %d", stopTimes[i].StopSequence),
			})
			return nil, ws
		}
	}
	if len(stopTimes) > 0 {
		trip.StopTimes = stopTimes
	}
	return trip, ws
}

// parseStopTimeDuration parses a GTFS clock value like "26:30:00" into an
// offset from the start of the service day. Hours may exceed 24 to place the
// call after midnight on the same service day.
func parseStopTimeDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("time %q is not in HH:MM:SS form", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("time %q has invalid hours", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q has invalid minutes", s)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time %q has invalid seconds", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}
