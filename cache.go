package gtfs

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/transitboard/gtfs/constants"
	"github.com/transitboard/gtfs/performance"
)

// cacheFormatVersion is baked into the cache marker and the payload. Bump it
// on any change to cachePayload or the entity types it carries; that
// invalidates every existing cache.
const cacheFormatVersion = "v1"

func cacheMarker(contentHash string) string {
	return cacheFormatVersion + "_" + contentHash
}

// cachePayload is the serialized form of a Feed: flat entity collections by
// value, references by ID, sorted by ID for a stable encoding. The Feed's
// derived indexes are rebuilt after decode, never stored.
type cachePayload struct {
	Version  string
	Stops    []Stop
	Routes   []Route
	Trips    []Trip
	Services []Service
	Shapes   []Shape
}

func newCachePayload(f *Feed) *cachePayload {
	p := &cachePayload{Version: cacheFormatVersion}
	for _, id := range sortedKeys(f.Stops) {
		p.Stops = append(p.Stops, *f.Stops[id])
	}
	for _, id := range sortedKeys(f.Routes) {
		p.Routes = append(p.Routes, *f.Routes[id])
	}
	for _, trip := range f.Trips {
		p.Trips = append(p.Trips, *trip)
	}
	for _, id := range sortedKeys(f.Services) {
		p.Services = append(p.Services, *f.Services[id])
	}
	for _, id := range sortedKeys(f.Shapes) {
		p.Shapes = append(p.Shapes, *f.Shapes[id])
	}
	return p
}

func (p *cachePayload) feed() *Feed {
	f := &Feed{
		Stops:    make(map[string]*Stop, len(p.Stops)),
		Routes:   make(map[string]*Route, len(p.Routes)),
		Services: make(map[string]*Service, len(p.Services)),
		Shapes:   make(map[string]*Shape, len(p.Shapes)),
	}
	for i := range p.Stops {
		f.Stops[p.Stops[i].ID] = &p.Stops[i]
	}
	for i := range p.Routes {
		f.Routes[p.Routes[i].ID] = &p.Routes[i]
	}
	// A dataset with no usable trips loads as a nil slice; keep the decoded
	// form identical.
	if len(p.Trips) > 0 {
		f.Trips = make([]*Trip, len(p.Trips))
		for i := range p.Trips {
			f.Trips[i] = &p.Trips[i]
		}
	}
	for i := range p.Services {
		f.Services[p.Services[i].ID] = &p.Services[i]
	}
	for i := range p.Shapes {
		f.Shapes[p.Shapes[i].ID] = &p.Shapes[i]
	}
	f.buildIndexes()
	return f
}

// encodeFeed writes the feed as a zstd-compressed gob payload.
func encodeFeed(f *Feed, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(zw).Encode(newCachePayload(f)); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func decodeFeed(r io.Reader) (*Feed, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var p cachePayload
	if err := gob.NewDecoder(zr).Decode(&p); err != nil {
		return nil, err
	}
	if p.Version != cacheFormatVersion {
		return nil, fmt.Errorf("cache payload has version %q, want %q", p.Version, cacheFormatVersion)
	}
	return p.feed(), nil
}

// LoadOrBuild returns the dataset in dir, restored from the cache artifacts
// when they match the dataset's current content hash and rebuilt from source
// otherwise. Cache problems are never fatal: an invalid cache is deleted and
// rebuilt, and a failed cache write still returns the in-memory Feed.
func LoadOrBuild(ctx context.Context, dir string, opts Options) (*LoadResult, error) {
	logger := opts.logger()
	blobPath, markerPath := cachePaths(dir, opts)

	contentHash, err := DatasetHash(dir)
	if err != nil {
		// Without a hash the cache cannot be validated; fall back to a
		// plain source load.
		logger.Warn("failed to hash dataset, skipping cache", "dir", dir, "err", err)
		return Load(ctx, dir, opts)
	}
	marker := cacheMarker(contentHash)

	metrics := &performance.LoadMetrics{}
	if feed, ok := readCache(blobPath, markerPath, marker, metrics, logger); ok {
		logger.Info("restored dataset from cache", "dir", dir, "trips", len(feed.Trips))
		return &LoadResult{Feed: feed, Metrics: metrics, FromCache: true}, nil
	}
	removeCache(blobPath, markerPath)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := Load(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	writeCache(result.Feed, blobPath, markerPath, marker, result.Metrics, logger)
	return result, nil
}

// ClearCache removes the cache artifacts for the dataset in dir.
func ClearCache(dir string, opts Options) error {
	blobPath, markerPath := cachePaths(dir, opts)
	var firstErr error
	for _, path := range []string{blobPath, markerPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func cachePaths(dir string, opts Options) (blobPath, markerPath string) {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = dir
	}
	return filepath.Join(cacheDir, constants.CacheBlobFile), filepath.Join(cacheDir, constants.CacheMarkerFile)
}

// readCache restores a Feed from the artifacts when the marker matches
// wantMarker. Any failure makes the cache invalid, never an error.
func readCache(blobPath, markerPath, wantMarker string, metrics *performance.LoadMetrics, logger *slog.Logger) (*Feed, bool) {
	stopTimer := metrics.Start("cache read")
	defer stopTimer()
	markerBytes, err := os.ReadFile(markerPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Info("ignoring cache", "reason", err.Error())
		}
		return nil, false
	}
	if strings.TrimSpace(string(markerBytes)) != wantMarker {
		logger.Info("ignoring cache", "reason", "dataset content changed")
		return nil, false
	}
	blob, err := os.Open(blobPath)
	if err != nil {
		logger.Info("ignoring cache", "reason", err.Error())
		return nil, false
	}
	defer blob.Close()
	feed, err := decodeFeed(blob)
	if err != nil {
		logger.Info("ignoring cache", "reason", err.Error())
		return nil, false
	}
	return feed, true
}

// writeCache persists the feed best-effort: blob first, marker last, each
// through a temp file renamed into place. On any failure both artifacts are
// removed so they never disagree.
func writeCache(feed *Feed, blobPath, markerPath, marker string, metrics *performance.LoadMetrics, logger *slog.Logger) {
	stopTimer := metrics.Start("cache write")
	defer stopTimer()
	if err := writeFileAtomic(blobPath, func(w io.Writer) error {
		return encodeFeed(feed, w)
	}); err != nil {
		logger.Warn("failed to write dataset cache", "path", blobPath, "err", err)
		removeCache(blobPath, markerPath)
		return
	}
	if err := writeFileAtomic(markerPath, func(w io.Writer) error {
		_, err := io.WriteString(w, marker)
		return err
	}); err != nil {
		logger.Warn("failed to write dataset cache marker", "path", markerPath, "err", err)
		removeCache(blobPath, markerPath)
	}
}

// removeCache deletes the artifacts together, best-effort. Leaving neither
// behind keeps them from ever disagreeing.
func removeCache(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
