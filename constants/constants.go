// Package constants enumerates the files that make up a GTFS schedule dataset
// and the artifacts the cache manager writes next to them.
package constants

// StaticFile is the name of a single table in a GTFS schedule dataset.
type StaticFile string

const (
	StopsFile         StaticFile = "stops.txt"
	RoutesFile        StaticFile = "routes.txt"
	TripsFile         StaticFile = "trips.txt"
	StopTimesFile     StaticFile = "stop_times.txt"
	CalendarFile      StaticFile = "calendar.txt"
	CalendarDatesFile StaticFile = "calendar_dates.txt"
	ShapesFile        StaticFile = "shapes.txt"
	TranslationsFile  StaticFile = "translations.txt"
)

// DatasetFiles returns every table that can appear in a dataset, in the
// canonical order used for content hashing.
func DatasetFiles() []StaticFile {
	return []StaticFile{
		CalendarFile,
		CalendarDatesFile,
		RoutesFile,
		ShapesFile,
		StopTimesFile,
		StopsFile,
		TranslationsFile,
		TripsFile,
	}
}

// Required reports whether a dataset must contain the file for a load to
// succeed. calendar.txt and calendar_dates.txt are special-cased by the
// loader: at least one of the two must be present.
func (f StaticFile) Required() bool {
	switch f {
	case StopsFile, RoutesFile, TripsFile, StopTimesFile:
		return true
	}
	return false
}

// Cache artifacts written into the cache directory of a dataset. The blob is
// the compressed serialized feed; the marker is a small text file holding
// "<formatVersion>_<contentHash>" so staleness can be checked without
// decompressing the blob.
const (
	CacheBlobFile   = ".gtfs_cache"
	CacheMarkerFile = ".gtfs_cache_hash"
)
