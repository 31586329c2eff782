package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"

	"cotreporter/src/model"
	"cotreporter/src/service"
)

// Server serves the latest report views over HTTP and keeps the weekly
// refresh schedule running.
type Server struct {
	service *service.Service
	catalog *model.Catalog
}

// NewServer builds the HTTP surface over the fetch service.
func NewServer(fetchService *service.Service, catalog *model.Catalog) *Server {
	return &Server{service: fetchService, catalog: catalog}
}

// Start runs the HTTP server and the cron schedule until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Start(port, fetchSchedule string) {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("\"/healthcheck\" error")
		}
	})
	r.Get("/reports/latest", s.handleLatest(true, false))
	r.Get("/reports/latest/enhanced", s.handleLatest(true, true))

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fetchSchedule, s.refreshLatest); err != nil {
		logger.WithError(err).Fatalf("Invalid fetch schedule %q", fetchSchedule)
	}
	scheduler.Start()

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

// handleLatest serves the latest report of every catalog asset in the
// requested view.
func (s *Server) handleLatest(verbose, enhanced bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.service.FetchLatestReport(r.Context(), s.catalog.All())
		if err != nil {
			http.Error(w, "no report is available", http.StatusBadGateway)
			return
		}
		views := make([]map[string]interface{}, 0, len(reports))
		for _, report := range reports {
			view, err := report.ToDict(verbose, enhanced)
			if err != nil {
				logger.WithError(err).Error("Failed to serialize report")
				http.Error(w, "failed to serialize report", http.StatusInternalServerError)
				return
			}
			views = append(views, view)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(views); err != nil {
			logger.WithError(err).Error("Failed to write report response")
		}
	}
}

// refreshLatest is the scheduled weekly fetch. Failures are logged; the
// schedule keeps running.
func (s *Server) refreshLatest() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reports, err := s.service.FetchLatestReport(ctx, s.catalog.All())
	if err != nil {
		logger.WithField("component", "Server").
			WithError(err).Error("Scheduled report refresh failed")
		return
	}
	logger.WithFields(map[string]interface{}{
		"component": "Server",
		"reports":   len(reports),
	}).Info("Scheduled report refresh completed")
}
