package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nergy-se/energymanager/pkg/alarm"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/nergy-se/energymanager/pkg/planner"
	"github.com/nergy-se/energymanager/pkg/version"
	"github.com/sirupsen/logrus"
)

type PlanSource interface {
	Current() *planner.Plan
	Info(t time.Time) planner.Info
}

type History interface {
	Range(ctx context.Context, from, to int64) ([]planner.Info, error)
}

type Server struct {
	plans   PlanSource
	alarms  *alarm.ActiveAlarms
	history History
}

// New returns the plan api. history may be nil.
func New(plans PlanSource, alarms *alarm.ActiveAlarms, history History) *Server {
	if alarms == nil {
		alarms = &alarm.ActiveAlarms{}
	}
	return &Server{
		plans:   plans,
		alarms:  alarms,
		history: history,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/plan", s.handlePlan)
		r.Get("/plan/{hour}", s.handlePlanHour)
		r.Get("/report", s.handleReport)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/version", s.handleVersion)
	})
	return r
}

// Start serves the api on address until ctx is done.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup, address string) {
	srv := &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		logrus.Infof("webserver: listening on %s", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("webserver: %s", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("webserver: error shutting down: %s", err)
		}
	}()
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	plan := s.plans.Current()
	if plan == nil {
		http.Error(w, "no plan", http.StatusServiceUnavailable)
		return
	}
	hours := plan.Hours()
	infos := make([]map[string]interface{}, 0, len(hours))
	for _, h := range hours {
		infos = append(infos, plan.Info(time.Unix(h, 0)).Map())
	}
	writeJSON(w, infos)
}

func (s *Server) handlePlanHour(w http.ResponseWriter, r *http.Request) {
	t, err := parseHour(chi.URLParam(r, "hour"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.plans.Info(t).Map())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.plans.Current().Report())
}

type status struct {
	Planned  bool      `json:"planned"`
	Time     time.Time `json:"time,omitempty"`
	Status   string    `json:"status,omitempty"`
	SOC      float64   `json:"soc,omitempty"`
	Capacity float64   `json:"capacity,omitempty"`
	Hours    int       `json:"hours"`
	Alarms   []string  `json:"alarms"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := status{Alarms: s.alarms.List()}
	if st.Alarms == nil {
		st.Alarms = []string{}
	}
	if plan := s.plans.Current(); plan != nil {
		st.Planned = true
		st.Time = plan.Time
		st.Status = plan.Status.String()
		st.SOC = plan.SOC
		st.Capacity = plan.Capacity
		st.Hours = len(plan.Hours())
	}
	writeJSON(w, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = parseHour(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = parseHour(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	infos, err := s.history.Range(r.Context(), hourseries.HourOf(from), to.Unix())
	if err != nil {
		logrus.Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Map())
	}
	writeJSON(w, out)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, version.Version)
}

// parseHour accepts RFC3339 or unix seconds.
func parseHour(v string) (time.Time, error) {
	if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(unix, 0), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour %q", v)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("webserver: error encoding response: %s", err)
	}
}
