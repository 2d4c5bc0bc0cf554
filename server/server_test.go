package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitboard/gtfs"
	"github.com/transitboard/gtfs/internal/testutil"
)

// dataset is the two-stop default network plus a shape on the trip and a
// Dutch translation for the central stop.
func dataset() *testutil.DatasetBuilder {
	return testutil.NewDatasetWithDefaults().Add(
		"trips.txt",
		"route_id,service_id,trip_id,shape_id",
		"red,weekday,t1,red_out",
	).Add(
		"shapes.txt",
		"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence,shape_dist_traveled",
		"red_out,1.5,2.5,1,0",
		"red_out,1.6,2.6,2,100.5",
	).Add(
		"translations.txt",
		"table_name,field_name,language,translation,record_id,field_value",
		"stops,stop_name,nl,Centraal,central,",
	)
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	dataset().BuildAt(t, filepath.Join(root, "metro"))
	testutil.NewDataset().Remove("routes.txt").BuildAt(t, filepath.Join(root, "broken"))

	providers, err := gtfs.DiscoverProviders(root)
	require.NoError(t, err)
	require.Len(t, providers, 2)

	opts := Options{
		Session:   gtfs.NewSession(gtfs.Options{Logger: discardLogger()}),
		Providers: providers,
		Logger:    discardLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	ts := httptest.NewServer(New(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func activate(t *testing.T, ts *httptest.Server) {
	t.Helper()
	status, _ := post(t, ts, "/providers/metro/activate")
	require.Equal(t, http.StatusOK, status)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var health struct {
		Status   string  `json:"status"`
		Provider *string `json:"provider"`
	}

	status, body := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Nil(t, health.Provider)

	activate(t, ts)

	status, body = get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &health))
	require.NotNil(t, health.Provider)
	assert.Equal(t, "metro", *health.Provider)
}

func TestProviders(t *testing.T) {
	ts := newTestServer(t)

	var providers []providerView
	status, body := get(t, ts, "/providers")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &providers))
	assert.Equal(t, []providerView{{Name: "broken"}, {Name: "metro"}}, providers)

	activate(t, ts)

	status, body = get(t, ts, "/providers")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &providers))
	assert.Equal(t, []providerView{{Name: "broken"}, {Name: "metro", Active: true}}, providers)
}

func TestActivateProvider(t *testing.T) {
	ts := newTestServer(t)

	status, body := post(t, ts, "/providers/metro/activate")
	assert.Equal(t, http.StatusOK, status)

	var result struct {
		Provider string `json:"provider"`
		Stops    int    `json:"stops"`
		Routes   int    `json:"routes"`
		Trips    int    `json:"trips"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "metro", result.Provider)
	assert.Equal(t, 2, result.Stops)
	assert.Equal(t, 1, result.Routes)
	assert.Equal(t, 1, result.Trips)
}

func TestActivateProviderUnknown(t *testing.T) {
	ts := newTestServer(t)

	status, body := post(t, ts, "/providers/ghost/activate")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errorMessage(t, body), `unknown provider "ghost"`)
}

func TestActivateProviderBadDataset(t *testing.T) {
	ts := newTestServer(t)

	status, body := post(t, ts, "/providers/broken/activate")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, errorMessage(t, body), `failed to activate provider "broken"`)

	// The failed activation must not have swapped anything in.
	status, _ = get(t, ts, "/stations/search?q=c")
	assert.Equal(t, http.StatusConflict, status)
}

func TestNoActiveProvider(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/stations/search?q=c",
		"/stations/central",
		"/stations/central/destinations",
		"/routes?from=central&to=harbor",
		"/trips/t1/shape",
	} {
		status, body := get(t, ts, path)
		assert.Equal(t, http.StatusConflict, status, "path %s", path)
		assert.Equal(t, "no provider is active", errorMessage(t, body), "path %s", path)
	}
}

func TestSearchStations(t *testing.T) {
	ts := newTestServer(t)
	activate(t, ts)

	var stations []stationView

	status, body := get(t, ts, "/stations/search?q=cent")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &stations))
	require.Len(t, stations, 1)
	assert.Equal(t, "central", stations[0].ID)
	assert.Equal(t, "Central", stations[0].Name)

	// The translated name both matches the query and becomes the display
	// name.
	status, body = get(t, ts, "/stations/search?q=centraal&lang=nl")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &stations))
	require.Len(t, stations, 1)
	assert.Equal(t, "Centraal", stations[0].Name)

	status, body = get(t, ts, "/stations/search?q=")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &stations))
	assert.Len(t, stations, 2)

	status, body = get(t, ts, "/stations/search?q=c&limit=1")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &stations))
	assert.Len(t, stations, 1)

	status, body = get(t, ts, "/stations/search?q=c&limit=zero")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(t, body), "invalid limit")

	status, body = get(t, ts, "/stations/search?q=nowhere")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))
}

func TestGetStation(t *testing.T) {
	ts := newTestServer(t)
	activate(t, ts)

	var station stationView
	status, body := get(t, ts, "/stations/central")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &station))
	assert.Equal(t, stationView{
		ID:        "central",
		Name:      "Central",
		Latitude:  1.5,
		Longitude: 2.5,
		Type:      "STOP",
	}, station)

	status, body = get(t, ts, "/stations/central?lang=nl")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &station))
	assert.Equal(t, "Centraal", station.Name)

	status, body = get(t, ts, "/stations/ghost")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errorMessage(t, body), `unknown stop "ghost"`)
}

func TestGetStationDefaultLanguage(t *testing.T) {
	ts := newTestServer(t, func(opts *Options) {
		opts.DefaultLanguage = "nl"
	})
	activate(t, ts)

	var station stationView
	status, body := get(t, ts, "/stations/central")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &station))
	assert.Equal(t, "Centraal", station.Name)
}

func TestStationDestinations(t *testing.T) {
	ts := newTestServer(t)
	activate(t, ts)

	var stations []stationView
	status, body := get(t, ts, "/stations/central/destinations")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &stations))
	require.Len(t, stations, 1)
	assert.Equal(t, "harbor", stations[0].ID)

	// harbor is the end of the line.
	status, body = get(t, ts, "/stations/harbor/destinations")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))

	status, body = get(t, ts, "/stations/ghost/destinations")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errorMessage(t, body), `unknown stop "ghost"`)
}

func TestFindRoutes(t *testing.T) {
	ts := newTestServer(t)
	activate(t, ts)

	var itineraries []itineraryView
	status, body := get(t, ts, "/routes?from=central&to=harbor")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &itineraries))
	assert.Equal(t, []itineraryView{
		{
			TripID:          "t1",
			RouteID:         "red",
			ShapeID:         "red_out",
			Departure:       "08:01",
			Arrival:         "08:15",
			DurationMinutes: 14,
			Stops: []legStopView{
				{ID: "central", Name: "Central", Arrival: "08:00", Departure: "08:01"},
				{ID: "harbor", Name: "Harbor", Arrival: "08:15", Departure: "08:16"},
			},
		},
	}, itineraries)

	// 2022-05-04 is a Wednesday, within the weekday service.
	status, body = get(t, ts, "/routes?from=central&to=harbor&date=2022-05-04")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &itineraries))
	assert.Len(t, itineraries, 1)

	// 2022-05-07 is a Saturday.
	status, body = get(t, ts, "/routes?from=central&to=harbor&date=2022-05-07")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))

	status, body = get(t, ts, "/routes?from=central")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(t, body), "from and to query parameters are required")

	status, body = get(t, ts, "/routes?from=central&to=harbor&date=05/04/2022")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(t, body), "invalid date")

	status, body = get(t, ts, "/routes?from=ghost&to=harbor")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))
}

func TestTripShape(t *testing.T) {
	ts := newTestServer(t)
	activate(t, ts)

	var shape shapeView
	status, body := get(t, ts, "/trips/t1/shape")
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &shape))
	assert.Equal(t, shapeView{
		ShapeID: "red_out",
		Points: []shapePointView{
			{Latitude: 1.5, Longitude: 2.5, Distance: ptr(0.0)},
			{Latitude: 1.6, Longitude: 2.6, Distance: ptr(100.5)},
		},
	}, shape)

	status, body = get(t, ts, "/trips/ghost/shape")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errorMessage(t, body), `no shape for trip "ghost"`)
}

func TestContentType(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func get(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func post(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope.Error
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](t T) *T {
	return &t
}
