package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/transitboard/gtfs/constants"
	"github.com/transitboard/gtfs/csv"
	"github.com/transitboard/gtfs/performance"
	"github.com/transitboard/gtfs/warnings"
)

// Stop is a place where vehicles pick up or drop off riders, or a station
// grouping several such platforms.
type Stop struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	Type      StopType
	// ParentStation is the ID of the station this stop belongs to, or empty.
	// Multiple stops may reference the same parent.
	ParentStation string
	PlatformCode  string
	Timezone      string
	// Translations maps a language tag to the stop's name in that language.
	// It is nil when the dataset has no translation for the stop.
	Translations map[string]string
}

// Route is a named transit line that trips run along.
type Route struct {
	ID        string
	ShortName string
	LongName  string
	Type      RouteType
	Color     string
	TextColor string
}

// Shape is the geographic path a trip follows.
type Shape struct {
	ID string
	// Points is ordered by shape point sequence.
	Points []ShapePoint
}

// ShapePoint is a single point in a shape.
type ShapePoint struct {
	Latitude  float64
	Longitude float64
	Distance  *float64
}

// Options configures dataset loading.
type Options struct {
	// Workers is the number of goroutines used for trip assembly.
	// Non-positive means one per CPU.
	Workers int
	// Logger receives load progress and row warnings. Nil means
	// slog.Default().
	Logger *slog.Logger
	// CacheDir is where LoadOrBuild keeps the cache artifacts. Empty means
	// the dataset directory itself.
	CacheDir string
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// LoadResult is the outcome of loading a dataset.
type LoadResult struct {
	Feed *Feed
	// Warnings lists the rows and tables that were skipped.
	Warnings []warnings.StaticWarning
	Metrics  *performance.LoadMetrics
	// FromCache reports whether the Feed was restored from the cache
	// artifacts instead of parsed from the source tables.
	FromCache bool
}

// Load parses the GTFS dataset in dir. Individually bad rows are skipped and
// reported on the result; a missing or unusable required table aborts with a
// MalformedDatasetError. The context is honored between parse stages.
func Load(ctx context.Context, dir string, opts Options) (*LoadResult, error) {
	logger := opts.logger()
	result := &LoadResult{Metrics: &performance.LoadMetrics{}}
	warn := func(w warnings.StaticWarning) {
		result.Warnings = append(result.Warnings, w)
		result.Metrics.Count("rows skipped", 1)
		logger.Warn("dataset warning", "table", string(w.File()), "detail", w.Error())
	}

	stops, err := loadStops(dir, result.Metrics, warn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	routes, err := loadRoutes(dir, result.Metrics, warn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	services, err := loadServices(dir, result.Metrics, warn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shapes, err := loadShapes(dir, result.Metrics, warn)
	if err != nil {
		return nil, err
	}
	trips, err := loadTrips(ctx, dir, opts.Workers, stops, routes, services, result.Metrics, warn)
	if err != nil {
		return nil, err
	}
	if err := applyTranslations(dir, stops, result.Metrics, warn); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := result.Metrics.Start("build indexes")
	result.Feed = newFeed(stops, routes, trips, services, shapes)
	stop()
	result.Metrics.Count("stops", len(stops))
	result.Metrics.Count("routes", len(routes))
	result.Metrics.Count("services", len(services))
	result.Metrics.Count("shapes", len(shapes))
	result.Metrics.Count("trips", len(trips))
	logger.Info("dataset loaded",
		"dir", dir,
		"stops", len(stops),
		"routes", len(routes),
		"services", len(services),
		"shapes", len(shapes),
		"trips", len(trips),
		"warnings", len(result.Warnings))
	return result, nil
}

// openTable opens one table of the dataset. A nil table with a nil error
// means an optional file is absent; that is also recorded as a warning.
func openTable(dir string, file constants.StaticFile, required bool, warn func(warnings.StaticWarning)) (*csv.Table, error) {
	f, err := os.Open(filepath.Join(dir, string(file)))
	if os.IsNotExist(err) {
		if required {
			return nil, &MalformedDatasetError{Table: file, Reason: "required file is missing", Err: err}
		}
		warn(warnings.MissingFile{Table: file})
		return nil, nil
	}
	if err != nil {
		return nil, &MalformedDatasetError{Table: file, Reason: "failed to open file", Err: err}
	}
	table, err := csv.Open(file, f)
	if err != nil {
		return nil, &MalformedDatasetError{Table: file, Reason: "unusable table", Err: err}
	}
	return table, nil
}

func requireColumns(table *csv.Table) error {
	if missing := table.MissingRequiredColumns(); missing != nil {
		return &MalformedDatasetError{
			Table:  table.Name(),
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

// requiredTableErr converts a mid-file read error on a required table into
// the fatal form.
func requiredTableErr(table *csv.Table) error {
	if err := table.Err(); err != nil {
		return &MalformedDatasetError{Table: table.Name(), Reason: "failed while reading rows", Err: err}
	}
	return nil
}

func loadStops(dir string, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) (map[string]*Stop, error) {
	stopTimer := metrics.Start("parse " + string(constants.StopsFile))
	defer stopTimer()
	table, err := openTable(dir, constants.StopsFile, true, warn)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	idCol := table.Required("stop_id")
	nameCol := table.Required("stop_name")
	latCol := table.Required("stop_lat")
	lonCol := table.Required("stop_lon")
	typeCol := table.Optional("location_type")
	parentCol := table.Optional("parent_station")
	platformCol := table.Optional("platform_code")
	timezoneCol := table.Optional("stop_timezone")
	if err := requireColumns(table); err != nil {
		return nil, err
	}

	type parsedStop struct {
		stop *Stop
		row  int
	}
	var parsed []parsedStop
	stops := map[string]*Stop{}
	for table.Next() {
		id := idCol.Read()
		name := nameCol.Read()
		latRaw := latCol.Read()
		lonRaw := lonCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.StopsFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		lat, err := parseFloat(latRaw)
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.StopsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid stop_lat %q", latRaw),
			})
			continue
		}
		lon, err := parseFloat(lonRaw)
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.StopsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid stop_lon %q", lonRaw),
			})
			continue
		}
		if _, ok := stops[id]; ok {
			warn(warnings.RowSkipped{
				Table:  constants.StopsFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("duplicate stop_id %q", id),
			})
			continue
		}
		parent := parentCol.Read()
		s := &Stop{
			ID:            id,
			Name:          name,
			Latitude:      lat,
			Longitude:     lon,
			Type:          parseStopType(typeCol.Read(), parent != ""),
			ParentStation: parent,
			PlatformCode:  platformCol.Read(),
			Timezone:      timezoneCol.Read(),
		}
		stops[id] = s
		parsed = append(parsed, parsedStop{stop: s, row: table.RowNumber()})
	}
	if err := requiredTableErr(table); err != nil {
		return nil, err
	}
	// Parents may appear later in the file than their children, so the
	// references are checked only after the full scan.
	for _, p := range parsed {
		if p.stop.ParentStation == "" {
			continue
		}
		parent, ok := stops[p.stop.ParentStation]
		if !ok || parent.Type != StopType_Station {
			warn(warnings.RowSkipped{
				Table:  constants.StopsFile,
				Row:    p.row,
				Reason: fmt.Sprintf("parent_station %q is not a station", p.stop.ParentStation),
			})
			delete(stops, p.stop.ID)
		}
	}
	return stops, nil
}

func loadRoutes(dir string, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) (map[string]*Route, error) {
	stopTimer := metrics.Start("parse " + string(constants.RoutesFile))
	defer stopTimer()
	table, err := openTable(dir, constants.RoutesFile, true, warn)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	idCol := table.Required("route_id")
	typeCol := table.Required("route_type")
	shortNameCol := table.Optional("route_short_name")
	longNameCol := table.Optional("route_long_name")
	colorCol := table.Optional("route_color")
	textColorCol := table.Optional("route_text_color")
	if err := requireColumns(table); err != nil {
		return nil, err
	}

	routes := map[string]*Route{}
	for table.Next() {
		id := idCol.Read()
		routeType := typeCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.RoutesFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		if _, ok := routes[id]; ok {
			warn(warnings.RowSkipped{
				Table:  constants.RoutesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("duplicate route_id %q", id),
			})
			continue
		}
		routes[id] = &Route{
			ID:        id,
			ShortName: shortNameCol.Read(),
			LongName:  longNameCol.Read(),
			Type:      parseRouteType(routeType),
			Color:     colorCol.ReadOr("FFFFFF"),
			TextColor: textColorCol.ReadOr("000000"),
		}
	}
	if err := requiredTableErr(table); err != nil {
		return nil, err
	}
	return routes, nil
}

// loadServices reads the calendar table pair. The dataset must carry at
// least one of the two.
func loadServices(dir string, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) (map[string]*Service, error) {
	stopTimer := metrics.Start("parse calendars")
	defer stopTimer()
	calendar, err := openTable(dir, constants.CalendarFile, false, warn)
	if err != nil {
		return nil, err
	}
	dates, err := openTable(dir, constants.CalendarDatesFile, false, warn)
	if err != nil {
		if calendar != nil {
			calendar.Close()
		}
		return nil, err
	}
	if calendar == nil && dates == nil {
		return nil, &MalformedDatasetError{
			Table:  constants.CalendarFile,
			Reason: fmt.Sprintf("dataset has neither %s nor %s", constants.CalendarFile, constants.CalendarDatesFile),
		}
	}

	services := map[string]*Service{}
	if calendar != nil {
		defer calendar.Close()
		if err := parseCalendar(calendar, services, warn); err != nil {
			return nil, err
		}
	}
	if dates != nil {
		defer dates.Close()
		if err := parseCalendarDates(dates, services, warn); err != nil {
			return nil, err
		}
	}
	return services, nil
}

func parseCalendar(table *csv.Table, services map[string]*Service, warn func(warnings.StaticWarning)) error {
	idCol := table.Required("service_id")
	weekdayCols := []csv.RequiredColumn{
		table.Required("monday"),
		table.Required("tuesday"),
		table.Required("wednesday"),
		table.Required("thursday"),
		table.Required("friday"),
		table.Required("saturday"),
		table.Required("sunday"),
	}
	startCol := table.Required("start_date")
	endCol := table.Required("end_date")
	if err := requireColumns(table); err != nil {
		return err
	}

	for table.Next() {
		id := idCol.Read()
		var weekdays [7]bool
		badWeekday := false
		for i, col := range weekdayCols {
			b, err := parseBool(col.Read())
			if err != nil {
				badWeekday = true
			}
			weekdays[i] = b
		}
		startRaw := startCol.Read()
		endRaw := endCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.CalendarFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		if badWeekday {
			warn(warnings.RowSkipped{
				Table:  constants.CalendarFile,
				Row:    table.RowNumber(),
				Reason: "weekday flags must be 0 or 1",
			})
			continue
		}
		start, err := parseDate(startRaw)
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.CalendarFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid start_date %q", startRaw),
			})
			continue
		}
		end, err := parseDate(endRaw)
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.CalendarFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid end_date %q", endRaw),
			})
			continue
		}
		if _, ok := services[id]; ok {
			warn(warnings.RowSkipped{
				Table:  constants.CalendarFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("duplicate service_id %q", id),
			})
			continue
		}
		services[id] = &Service{
			ID:        id,
			Monday:    weekdays[0],
			Tuesday:   weekdays[1],
			Wednesday: weekdays[2],
			Thursday:  weekdays[3],
			Friday:    weekdays[4],
			Saturday:  weekdays[5],
			Sunday:    weekdays[6],
			StartDate: start,
			EndDate:   end,
		}
	}
	return requiredTableErr(table)
}

func parseCalendarDates(table *csv.Table, services map[string]*Service, warn func(warnings.StaticWarning)) error {
	idCol := table.Required("service_id")
	dateCol := table.Required("date")
	exceptionCol := table.Required("exception_type")
	if err := requireColumns(table); err != nil {
		return err
	}

	for table.Next() {
		id := idCol.Read()
		dateRaw := dateCol.Read()
		exception := exceptionCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.CalendarDatesFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		date, err := parseDate(dateRaw)
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.CalendarDatesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid date %q", dateRaw),
			})
			continue
		}
		service, ok := services[id]
		if !ok {
			// A service defined only by exceptions runs only on its added
			// dates: no weekdays, no validity range.
			service = &Service{ID: id}
			services[id] = service
		}
		switch exception {
		case "1":
			service.AddedDates = append(service.AddedDates, date)
		case "2":
			service.RemovedDates = append(service.RemovedDates, date)
		default:
			warn(warnings.RowSkipped{
				Table:  constants.CalendarDatesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid exception_type %q", exception),
			})
		}
	}
	return requiredTableErr(table)
}

func loadShapes(dir string, metrics *performance.LoadMetrics, warn func(warnings.StaticWarning)) (map[string]*Shape, error) {
	stopTimer := metrics.Start("parse " + string(constants.ShapesFile))
	defer stopTimer()
	shapes := map[string]*Shape{}
	table, err := openTable(dir, constants.ShapesFile, false, warn)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return shapes, nil
	}
	defer table.Close()

	idCol := table.Required("shape_id")
	latCol := table.Required("shape_pt_lat")
	lonCol := table.Required("shape_pt_lon")
	seqCol := table.Required("shape_pt_sequence")
	distCol := table.Optional("shape_dist_traveled")
	if missing := table.MissingRequiredColumns(); missing != nil {
		warn(warnings.TableSkipped{
			Table:  constants.ShapesFile,
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		})
		return shapes, nil
	}

	type rawPoint struct {
		sequence int
		point    ShapePoint
	}
	pointsByShape := map[string][]rawPoint{}
	for table.Next() {
		id := idCol.Read()
		latRaw := latCol.Read()
		lonRaw := lonCol.Read()
		seqRaw := seqCol.Read()
		if keys := table.MissingRowKeys(); len(keys) > 0 {
			warn(warnings.RowSkipped{
				Table:  constants.ShapesFile,
				Row:    table.RowNumber(),
				Reason: "missing " + strings.Join(keys, ", "),
			})
			continue
		}
		lat, err := parseFloat(latRaw)
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.ShapesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid shape_pt_lat %q", latRaw),
			})
			continue
		}
		lon, err := parseFloat(lonRaw)
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.ShapesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid shape_pt_lon %q", lonRaw),
			})
			continue
		}
		sequence, err := strconv.Atoi(strings.TrimSpace(seqRaw))
		if err != nil {
			warn(warnings.RowSkipped{
				Table:  constants.ShapesFile,
				Row:    table.RowNumber(),
				Reason: fmt.Sprintf("invalid shape_pt_sequence %q", seqRaw),
			})
			continue
		}
		var distance *float64
		if raw := distCol.Read(); raw != "" {
			d, err := parseFloat(raw)
			if err != nil {
				warn(warnings.RowSkipped{
					Table:  constants.ShapesFile,
					Row:    table.RowNumber(),
					Reason: fmt.Sprintf("invalid shape_dist_traveled %q", raw),
				})
				continue
			}
			distance = &d
		}
		pointsByShape[id] = append(pointsByShape[id], rawPoint{
			sequence: sequence,
			point:    ShapePoint{Latitude: lat, Longitude: lon, Distance: distance},
		})
	}
	if err := table.Err(); err != nil {
		warn(warnings.TableTruncated{Table: constants.ShapesFile, Row: table.RowNumber(), Err: err})
	}
	for id, raw := range pointsByShape {
		sort.SliceStable(raw, func(i, j int) bool { return raw[i].sequence < raw[j].sequence })
		points := make([]ShapePoint, len(raw))
		for i, r := range raw {
			points[i] = r.point
		}
		shapes[id] = &Shape{ID: id, Points: points}
	}
	return shapes, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("value %q is not 0 or 1", s)
}

// parseDate parses a GTFS date like "20220504" as UTC midnight.
func parseDate(s string) (time.Time, error) {
	return time.Parse("20060102", strings.TrimSpace(s))
}
