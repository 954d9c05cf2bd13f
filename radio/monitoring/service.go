// Package monitoring serves the radio's operational surface: Prometheus
// metrics plus a health report that combines service statuses with the
// engine's live state, so an operator can see at a glance whether the radio
// is gossiping, buffering and attesting.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
	"github.com/graphops/poi-crosschecker-radio/shared"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "monitoring")

// Service exposes /metrics, /healthz and /goroutinez on one port. Metrics
// come from the Prometheus DefaultRegisterer every radio package registers
// into via promauto.
type Service struct {
	server      *http.Server
	svcRegistry *shared.ServiceRegistry
	state       *state.PersistedState
	failStatus  error
}

// healthReport is the /healthz body. Engine counters ride along with the
// per-service statuses because a radio whose buffer never drains or whose
// local store never grows is unhealthy even when every service reports OK.
type healthReport struct {
	Healthy           bool              `json:"healthy"`
	Services          map[string]string `json:"services"`
	RemoteMessages    int               `json:"remote_messages_buffered"`
	LocalAttestations int               `json:"local_attestations"`
}

// NewService sets up the monitoring endpoint for a host:port address. An
// empty host matches any IP, so ":8080" is acceptable.
func NewService(addr string, svcRegistry *shared.ServiceRegistry, st *state.PersistedState) *Service {
	s := &Service{
		svcRegistry: svcRegistry,
		state:       st,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/goroutinez", s.goroutinezHandler)

	s.server = &http.Server{Addr: addr, Handler: mux}

	return s
}

func (s *Service) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	report := healthReport{
		Healthy:  true,
		Services: make(map[string]string),
	}
	for kind, status := range s.svcRegistry.Statuses() {
		if status == nil {
			report.Services[fmt.Sprintf("%v", kind)] = "OK"
			continue
		}
		report.Healthy = false
		report.Services[fmt.Sprintf("%v", kind)] = "ERROR " + status.Error()
	}
	report.RemoteMessages = s.state.Remote.Len()
	report.LocalAttestations = len(s.state.Local.Flatten())

	w.Header().Set("Content-Type", "application/json")
	if !report.Healthy {
		w.WriteHeader(http.StatusInternalServerError)
		log.WithField("services", report.Services).Warn("Radio is unhealthy!")
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.WithError(err).Error("Could not write healthz body")
	}
}

func (s *Service) goroutinezHandler(w http.ResponseWriter, _ *http.Request) {
	if err := pprof.Lookup("goroutine").WriteTo(w, 2); err != nil {
		log.WithError(err).Error("Failed to write pprof goroutines")
	}
}

// Start serves the monitoring endpoint.
func (s *Service) Start() {
	log.WithField("address", s.server.Addr).Debug("Starting monitoring service")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Errorf("Could not serve monitoring on %s", s.server.Addr)
		s.failStatus = err
	}
}

// Stop the service gracefully.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status checks for any service failure conditions.
func (s *Service) Status() error {
	return s.failStatus
}
