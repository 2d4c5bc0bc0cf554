// Package server exposes the schedule engine over HTTP. All endpoints
// speak JSON; failures use the envelope {"error": "..."}.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/transitboard/gtfs"
	"github.com/transitboard/gtfs/internal/export"
)

// Options configures a Server.
type Options struct {
	// Session holds the active feed. Required.
	Session *gtfs.Session
	// Providers are the datasets that may be activated.
	Providers []gtfs.Provider
	// Logger receives request logs. nil means slog.Default().
	Logger *slog.Logger
	// DefaultLanguage translates stop names for requests without a lang
	// parameter. Empty selects the original names.
	DefaultLanguage string
	// CORSOrigins configures the CORS middleware. Empty allows any origin.
	CORSOrigins []string
}

type Server struct {
	session         *gtfs.Session
	providers       []gtfs.Provider
	logger          *slog.Logger
	defaultLanguage string
	corsOrigins     []string
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := opts.DefaultLanguage
	if lang == "" {
		lang = gtfs.DefaultLanguage
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		session:         opts.Session,
		providers:       opts.Providers,
		logger:          logger,
		defaultLanguage: lang,
		corsOrigins:     origins,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(s.requestLogger)
	r.Get("/health", s.health)
	r.Get("/providers", s.listProviders)
	r.Post("/providers/{name}/activate", s.activateProvider)
	r.Get("/stations/search", s.searchStations)
	r.Get("/stations/{id}", s.getStation)
	r.Get("/stations/{id}/destinations", s.stationDestinations)
	r.Get("/routes", s.findRoutes)
	r.Get("/trips/{id}/shape", s.tripShape)
	return r
}

// Run serves the handler on addr until ctx is canceled, then drains
// in-flight requests for up to grace.
func (s *Server) Run(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errC := make(chan error, 1)
	go func() {
		errC <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", addr)
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	var provider any
	if _, active, ok := s.session.Feed(); ok {
		provider = active.Name
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": provider,
	})
}

type providerView struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	_, active, activeOK := s.session.Feed()
	views := make([]providerView, 0, len(s.providers))
	for _, provider := range s.providers {
		views = append(views, providerView{
			Name:   provider.Name,
			Active: activeOK && provider.Name == active.Name,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) activateProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	provider, ok := s.findProvider(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", name))
		return
	}
	result, err := s.session.Use(r.Context(), provider)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": provider.Name,
		"stops":    len(result.Feed.Stops),
		"routes":   len(result.Feed.Routes),
		"trips":    len(result.Feed.Trips),
	})
}

type stationView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Type          string   `json:"type"`
	ParentStation string   `json:"parent_station,omitempty"`
	PlatformCode  string   `json:"platform_code,omitempty"`
	ChildStops    []string `json:"child_stops,omitempty"`
}

func newStationView(feed *gtfs.Feed, stop *gtfs.Stop, lang string) stationView {
	return stationView{
		ID:            stop.ID,
		Name:          feed.DisplayName(stop, lang),
		Latitude:      stop.Latitude,
		Longitude:     stop.Longitude,
		Type:          stop.Type.String(),
		ParentStation: stop.ParentStation,
		PlatformCode:  stop.PlatformCode,
		ChildStops:    feed.ChildStops(stop.ID),
	}
}

func (s *Server) searchStations(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.activeFeed(w)
	if !ok {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	lang := s.lang(r)
	stops := feed.SearchStops(r.URL.Query().Get("q"), limit)
	views := make([]stationView, 0, len(stops))
	for _, stop := range stops {
		views = append(views, newStationView(feed, stop, lang))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getStation(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.activeFeed(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	stop := feed.Stop(id)
	if stop == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown stop %q", id))
		return
	}
	writeJSON(w, http.StatusOK, newStationView(feed, stop, s.lang(r)))
}

func (s *Server) stationDestinations(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.activeFeed(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if feed.Stop(id) == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown stop %q", id))
		return
	}
	lang := s.lang(r)
	destinations := feed.Destinations(id)
	views := make([]stationView, 0, len(destinations))
	for _, stop := range destinations {
		views = append(views, newStationView(feed, stop, lang))
	}
	writeJSON(w, http.StatusOK, views)
}

type itineraryView struct {
	TripID          string        `json:"trip_id"`
	RouteID         string        `json:"route_id"`
	ShapeID         string        `json:"shape_id,omitempty"`
	Departure       string        `json:"departure"`
	Arrival         string        `json:"arrival"`
	DurationMinutes int           `json:"duration_minutes"`
	Stops           []legStopView `json:"stops"`
}

type legStopView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
}

func newItineraryView(feed *gtfs.Feed, itinerary gtfs.Itinerary, lang string) itineraryView {
	stops := make([]legStopView, len(itinerary.StopTimes))
	for i, stopTime := range itinerary.StopTimes {
		stops[i] = legStopView{
			ID:        stopTime.StopID,
			Name:      feed.DisplayName(feed.Stop(stopTime.StopID), lang),
			Arrival:   export.Clock(stopTime.ArrivalTime),
			Departure: export.Clock(stopTime.DepartureTime),
		}
	}
	return itineraryView{
		TripID:          itinerary.TripID,
		RouteID:         itinerary.RouteID,
		ShapeID:         itinerary.ShapeID,
		Departure:       export.Clock(itinerary.Departure),
		Arrival:         export.Clock(itinerary.Arrival),
		DurationMinutes: export.Minutes(itinerary.Duration),
		Stops:           stops,
	}
}

func (s *Server) findRoutes(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.activeFeed(w)
	if !ok {
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to query parameters are required")
		return
	}
	var date *time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", v))
			return
		}
		date = &d
	}
	lang := s.lang(r)
	itineraries := feed.FindItineraries(from, to, date)
	views := make([]itineraryView, 0, len(itineraries))
	for _, itinerary := range itineraries {
		views = append(views, newItineraryView(feed, itinerary, lang))
	}
	writeJSON(w, http.StatusOK, views)
}

type shapeView struct {
	ShapeID string           `json:"shape_id"`
	Points  []shapePointView `json:"points"`
}

type shapePointView struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Distance  *float64 `json:"distance,omitempty"`
}

func (s *Server) tripShape(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.activeFeed(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	shape := feed.TripShape(id)
	if shape == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no shape for trip %q", id))
		return
	}
	points := make([]shapePointView, len(shape.Points))
	for i, point := range shape.Points {
		points[i] = shapePointView{
			Latitude:  point.Latitude,
			Longitude: point.Longitude,
			Distance:  point.Distance,
		}
	}
	writeJSON(w, http.StatusOK, shapeView{ShapeID: shape.ID, Points: points})
}

// activeFeed returns the session's feed, or writes a 409 when no provider
// has been activated yet.
func (s *Server) activeFeed(w http.ResponseWriter) (*gtfs.Feed, bool) {
	feed, _, ok := s.session.Feed()
	if !ok {
		writeError(w, http.StatusConflict, "no provider is active")
		return nil, false
	}
	return feed, true
}

func (s *Server) findProvider(name string) (gtfs.Provider, bool) {
	for _, provider := range s.providers {
		if provider.Name == name {
			return provider, true
		}
	}
	return gtfs.Provider{}, false
}

func (s *Server) lang(r *http.Request) string {
	if v := r.URL.Query().Get("lang"); v != "" {
		return v
	}
	return s.defaultLanguage
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
