// Package testutil builds GTFS dataset fixtures on disk for the tests of
// the packages around the engine.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// DatasetBuilder accumulates GTFS tables as raw text and writes them out as
// a dataset directory.
type DatasetBuilder struct {
	files map[string]string
}

// NewDataset returns a builder holding a header-only row for every table: a
// dataset that loads cleanly with nothing in it.
func NewDataset() *DatasetBuilder {
	return (&DatasetBuilder{files: map[string]string{}}).Add(
		"stops.txt", "stop_id,stop_name,stop_lat,stop_lon",
	).Add(
		"routes.txt", "route_id,route_type",
	).Add(
		"trips.txt", "route_id,service_id,trip_id",
	).Add(
		"stop_times.txt", "trip_id,stop_id,arrival_time,departure_time,stop_sequence",
	).Add(
		"calendar.txt", "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
	).Add(
		"calendar_dates.txt", "service_id,date,exception_type",
	).Add(
		"shapes.txt", "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
	).Add(
		"translations.txt", "table_name,field_name,language,translation,record_id,field_value",
	)
}

// NewDatasetWithDefaults returns a builder holding a two-stop network with
// one weekday trip between the stops, enough for a query to return
// something.
func NewDatasetWithDefaults() *DatasetBuilder {
	return NewDataset().Add(
		"stops.txt",
		"stop_id,stop_name,stop_lat,stop_lon",
		"central,Central,1.5,2.5",
		"harbor,Harbor,1.6,2.6",
	).Add(
		"routes.txt",
		"route_id,route_type",
		"red,3",
	).Add(
		"trips.txt",
		"route_id,service_id,trip_id",
		"red,weekday,t1",
	).Add(
		"stop_times.txt",
		"trip_id,stop_id,arrival_time,departure_time,stop_sequence",
		"t1,central,08:00:00,08:01:00,1",
		"t1,harbor,08:15:00,08:16:00,2",
	).Add(
		"calendar.txt",
		"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
		"weekday,1,1,1,1,1,0,0,20220501,20220531",
	)
}

// Add sets one table's full content, header first.
func (b *DatasetBuilder) Add(fileName string, lines ...string) *DatasetBuilder {
	b.files[fileName] = strings.Join(lines, "\n")
	return b
}

// Remove drops a table from the dataset.
func (b *DatasetBuilder) Remove(fileName string) *DatasetBuilder {
	delete(b.files, fileName)
	return b
}

// Build writes the dataset into a fresh temp directory and returns it.
func (b *DatasetBuilder) Build(t *testing.T) string {
	t.Helper()
	return b.BuildAt(t, t.TempDir())
}

// BuildAt writes the dataset into dir, creating it if needed. It returns
// dir for chaining.
func (b *DatasetBuilder) BuildAt(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create dataset dir: %s", err)
	}
	for fileName, fileContent := range b.files {
		if err := os.WriteFile(filepath.Join(dir, fileName), []byte(fileContent), 0o644); err != nil {
			t.Fatalf("failed to write %s: %s", fileName, err)
		}
	}
	return dir
}
