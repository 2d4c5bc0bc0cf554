// Package export renders query results as CSV or JSON for the command line
// tool and for anything else that wants a flat, display-ready view of the
// engine's types.
package export

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/transitboard/gtfs"
)

// Format selects a machine-readable output encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ParseFormat recognizes the output values that route through this package.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case CSV, JSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

//go:embed itineraries.csv.tmpl
var itinerariesCsvTmpl string

//go:embed stops.csv.tmpl
var stopsCsvTmpl string

var funcMap = template.FuncMap{
	"Join":  strings.Join,
	"Field": csvField,
}

var (
	itinerariesCsv = template.Must(template.New("itineraries.csv.tmpl").Funcs(funcMap).Parse(itinerariesCsvTmpl))
	stopsCsv       = template.Must(template.New("stops.csv.tmpl").Funcs(funcMap).Parse(stopsCsvTmpl))
)

// csvField quotes a value when it would otherwise break the row.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Clock renders an offset from the start of the service day as a wall clock
// value. Post-midnight offsets wrap back into 00:00-23:59.
func Clock(d time.Duration) string {
	total := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", (total/60)%24, total%60)
}

// Minutes is the duration in whole minutes.
func Minutes(d time.Duration) int {
	return int(d / time.Minute)
}

// ItineraryRow is the flat form of one itinerary.
type ItineraryRow struct {
	TripID          string   `json:"trip_id"`
	RouteID         string   `json:"route_id"`
	ServiceID       string   `json:"service_id"`
	ShapeID         string   `json:"shape_id,omitempty"`
	Origin          string   `json:"origin"`
	Destination     string   `json:"destination"`
	Departure       string   `json:"departure"`
	Arrival         string   `json:"arrival"`
	DurationMinutes int      `json:"duration_minutes"`
	Stops           []string `json:"stops"`
}

// NewItineraryRows converts itineraries into rows, clock times formatted
// and the traveled stops flattened to their IDs.
func NewItineraryRows(itineraries []gtfs.Itinerary) []ItineraryRow {
	rows := make([]ItineraryRow, len(itineraries))
	for i, itinerary := range itineraries {
		stops := make([]string, len(itinerary.StopTimes))
		for j, stopTime := range itinerary.StopTimes {
			stops[j] = stopTime.StopID
		}
		rows[i] = ItineraryRow{
			TripID:          itinerary.TripID,
			RouteID:         itinerary.RouteID,
			ServiceID:       itinerary.ServiceID,
			ShapeID:         itinerary.ShapeID,
			Origin:          itinerary.OriginStopID,
			Destination:     itinerary.DestinationStopID,
			Departure:       Clock(itinerary.Departure),
			Arrival:         Clock(itinerary.Arrival),
			DurationMinutes: Minutes(itinerary.Duration),
			Stops:           stops,
		}
	}
	return rows
}

// Itineraries writes the itineraries to w in the given format.
func Itineraries(w io.Writer, format Format, itineraries []gtfs.Itinerary) error {
	rows := NewItineraryRows(itineraries)
	switch format {
	case CSV:
		return itinerariesCsv.Execute(w, rows)
	case JSON:
		return writeJSON(w, rows)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// StopRow is the flat form of one stop.
type StopRow struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Type          string  `json:"type"`
	ParentStation string  `json:"parent_station,omitempty"`
	PlatformCode  string  `json:"platform_code,omitempty"`
}

// NewStopRows converts stops into rows with names translated into lang.
func NewStopRows(feed *gtfs.Feed, stops []*gtfs.Stop, lang string) []StopRow {
	rows := make([]StopRow, len(stops))
	for i, stop := range stops {
		rows[i] = StopRow{
			ID:            stop.ID,
			Name:          feed.DisplayName(stop, lang),
			Latitude:      stop.Latitude,
			Longitude:     stop.Longitude,
			Type:          stop.Type.String(),
			ParentStation: stop.ParentStation,
			PlatformCode:  stop.PlatformCode,
		}
	}
	return rows
}

// Stops writes the stops to w in the given format, names translated into
// lang.
func Stops(w io.Writer, format Format, feed *gtfs.Feed, stops []*gtfs.Stop, lang string) error {
	rows := NewStopRows(feed, stops, lang)
	switch format {
	case CSV:
		return stopsCsv.Execute(w, rows)
	case JSON:
		return writeJSON(w, rows)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
