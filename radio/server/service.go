// Package server exposes the radio's read-only query surface: buffered
// remote messages, local attestations, and on-demand comparisons over the
// live state. All reads snapshot under the state locks and never drain the
// remote buffer.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "server")

// Config wires the query surface.
type Config struct {
	Port     int
	State    *state.PersistedState
	Resolver attestation.StakeResolver
}

// Service is the HTTP query server.
type Service struct {
	cfg        *Config
	server     *http.Server
	failStatus error
}

// NewService builds the router and server.
func NewService(cfg *Config) *Service {
	s := &Service{cfg: cfg}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/messages", s.messagesHandler).Methods(http.MethodGet)
	api.HandleFunc("/attestations", s.attestationsHandler).Methods(http.MethodGet)
	api.HandleFunc("/comparison-results", s.comparisonResultsHandler).Methods(http.MethodGet)
	api.HandleFunc("/comparison-result/{deployment}/{block}", s.comparisonResultHandler).Methods(http.MethodGet)
	api.HandleFunc("/ratios/senders", s.senderRatioHandler).Methods(http.MethodGet)
	api.HandleFunc("/ratios/stake", s.stakeRatioHandler).Methods(http.MethodGet)

	handler := cors.Default().Handler(r)
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}
	return s
}

// Start serves the query API.
func (s *Service) Start() {
	log.WithField("address", s.server.Addr).Info("Starting query server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("Query server failed")
		s.failStatus = err
	}
}

// Stop shuts the server down gracefully.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports a server failure, if any.
func (s *Service) Status() error {
	return s.failStatus
}
