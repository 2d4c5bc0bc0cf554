package gtfs

import (
	"fmt"

	"github.com/transitboard/gtfs/constants"
)

// MalformedDatasetError is returned when a dataset cannot be loaded at all:
// a required table is missing or unreadable, or a required table lacks
// required columns. Individually bad rows never produce this error; they are
// reported as warnings on the load result.
type MalformedDatasetError struct {
	// Table is the GTFS file that could not be used.
	Table constants.StaticFile
	// Reason describes what is wrong with the table.
	Reason string
	// Err is the underlying error, when there is one.
	Err error
}

func (e *MalformedDatasetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed dataset: %s: %s: %v", e.Table, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed dataset: %s: %s", e.Table, e.Reason)
}

func (e *MalformedDatasetError) Unwrap() error {
	return e.Err
}
