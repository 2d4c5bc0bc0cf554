// Package warnings defines the non-fatal problems found while loading a
// GTFS dataset. Warnings never abort a load; they are collected on the load
// result and logged.
package warnings

import (
	"fmt"

	"github.com/transitboard/gtfs/constants"
)

// StaticWarning is a non-fatal problem with a GTFS dataset.
type StaticWarning interface {
	// File is the table the warning refers to.
	File() constants.StaticFile
	Error() string
}

// RowSkipped reports a single table row that could not be used.
type RowSkipped struct {
	Table constants.StaticFile
	// Row is the 1-based data row position, or 0 when unknown.
	Row    int
	Reason string
}

func (w RowSkipped) File() constants.StaticFile {
	return w.Table
}

func (w RowSkipped) Error() string {
	return fmt.Sprintf("skipping %s row %d: %s", w.Table, w.Row, w.Reason)
}

// MissingFile reports an absent optional table.
type MissingFile struct {
	Table constants.StaticFile
}

func (w MissingFile) File() constants.StaticFile {
	return w.Table
}

func (w MissingFile) Error() string {
	return fmt.Sprintf("dataset has no %s, continuing without it", w.Table)
}

// TableSkipped reports an optional table that exists but cannot be used, for
// example because its header lacks required columns.
type TableSkipped struct {
	Table  constants.StaticFile
	Reason string
}

func (w TableSkipped) File() constants.StaticFile {
	return w.Table
}

func (w TableSkipped) Error() string {
	return fmt.Sprintf("ignoring %s: %s", w.Table, w.Reason)
}

// TableTruncated reports an optional table whose rows could only be read
// partially.
type TableTruncated struct {
	Table constants.StaticFile
	// Row is the last data row that was read successfully.
	Row int
	Err error
}

func (w TableTruncated) File() constants.StaticFile {
	return w.Table
}

func (w TableTruncated) Error() string {
	return fmt.Sprintf("stopped reading %s after row %d: %v", w.Table, w.Row, w.Err)
}

// TripSkipped reports a trip dropped during assembly, for example because
// its stop times carry duplicate sequence numbers.
type TripSkipped struct {
	TripID string
	Reason string
}

func (w TripSkipped) File() constants.StaticFile {
	return constants.StopTimesFile
}

func (w TripSkipped) Error() string {
	return fmt.Sprintf("skipping trip %q: %s", w.TripID, w.Reason)
}
