package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/extensibility"
	"github.com/comalice/trackcoord/internal/primitives"
	"github.com/comalice/trackcoord/internal/production"
)

// eventLister reads the most recent narration entries, newest first.
type eventLister func(ctx context.Context, limit int) ([]primitives.LogEntry, error)

type server struct {
	c         *core.Coordinator
	motion    *extensibility.ChannelMotionSource
	position  *extensibility.ReplayPositionSource
	perimeter *extensibility.SoftPerimeterSource
	events    eventLister
	viz       *production.DefaultVisualizer
	log       *logrus.Entry
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})

	r.Route("/tracking", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/resume", s.handleResume)
		r.Get("/status", s.handleStatus)
		r.Get("/graph", s.handleGraph)
		r.Get("/events", s.handleEvents)
	})

	// platform callbacks
	r.Route("/ingest", func(r chi.Router) {
		r.Post("/motion", s.handleMotion)
		r.Post("/location", s.handleLocation)
		r.Post("/perimeter", s.handlePerimeter)
	})
	return r
}

type geofenceView struct {
	ID           primitives.GeofenceID `json:"id"`
	RadiusMeters float64               `json:"radiusMeters"`
	Center       json.RawMessage       `json:"center"`
}

type statusView struct {
	State        primitives.TrackingState   `json:"state"`
	Tracking     bool                       `json:"tracking"`
	TimerArmed   bool                       `json:"timerArmed"`
	LastLocation *primitives.LocationSample `json:"lastLocation,omitempty"`
	Geofences    []geofenceView             `json:"geofences"`
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.c.StartTracking(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.c.StopTracking(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *server) handleResume(w http.ResponseWriter, r *http.Request) {
	resumed, err := s.c.ResumeIfPreviouslyTracking(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resumed": resumed})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.c.Status(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	view := statusView{
		State:        st.State,
		Tracking:     st.Tracking,
		TimerArmed:   st.TimerArmed,
		LastLocation: st.LastLocation,
		Geofences:    []geofenceView{},
	}
	for _, g := range st.Geofences {
		center, err := g.GeoJSON()
		if err != nil {
			s.fail(w, err)
			return
		}
		view.Geofences = append(view.Geofences, geofenceView{ID: g.ID, RadiusMeters: g.RadiusMeters, Center: center})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleGraph(w http.ResponseWriter, r *http.Request) {
	st, err := s.c.Status(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		data, err := s.viz.ExportJSON(st.State)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.Write([]byte(s.viz.ExportDOT(st.State)))
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.events(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []primitives.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type motionRequest struct {
	Activity   string    `json:"activity"`
	Transition string    `json:"transition"`
	Confidence *int      `json:"confidence,omitempty"`
	Time       time.Time `json:"time"`
}

func (s *server) handleMotion(w http.ResponseWriter, r *http.Request) {
	var req motionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	tr, err := primitives.ParseTransitionType(req.Transition)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	at := req.Time
	if at.IsZero() {
		at = time.Now()
	}
	delivered := s.motion.Forward(primitives.MotionEvent{
		Kind:       primitives.ParseActivityKind(req.Activity),
		Transition: tr,
		Time:       at,
		Confidence: req.Confidence,
	})
	writeJSON(w, http.StatusAccepted, map[string]bool{"delivered": delivered})
}

type locationResponse struct {
	Delivered     bool                    `json:"delivered"`
	PerimeterExit []primitives.GeofenceID `json:"perimeterExit,omitempty"`
}

func (s *server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var sample primitives.LocationSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if sample.Latitude < -90 || sample.Latitude > 90 || sample.Longitude < -180 || sample.Longitude > 180 {
		http.Error(w, "coordinates out of range", http.StatusBadRequest)
		return
	}
	// one sample feeds both providers; the location is applied before the
	// exit it caused
	sample, deliver := s.position.Accept(sample)
	exit, fired := s.perimeter.Evaluate(sample)
	resp := locationResponse{Delivered: deliver}
	if deliver {
		if err := s.c.HandleLocation(r.Context(), sample); err != nil {
			s.fail(w, err)
			return
		}
	}
	if fired {
		resp.PerimeterExit = exit.TriggeringIDs
		if err := s.c.HandlePerimeterExit(r.Context(), exit); err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type perimeterRequest struct {
	Geofences []primitives.GeofenceID `json:"geofences"`
	Time      time.Time               `json:"time"`
}

func (s *server) handlePerimeter(w http.ResponseWriter, r *http.Request) {
	var req perimeterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	evt := primitives.PerimeterEvent{TriggeringIDs: req.Geofences, Transition: primitives.TransitionExit, Time: req.Time}
	if err := s.c.HandlePerimeterExit(r.Context(), evt); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrClosed), errors.Is(err, core.ErrNotStarted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.log.WithError(err).Warn("request failed")
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
