package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
	"github.com/graphops/poi-crosschecker-radio/shared"
)

type healthyService struct{}

func (s *healthyService) Start()        {}
func (s *healthyService) Stop() error   { return nil }
func (s *healthyService) Status() error { return nil }

type failingService struct{}

func (s *failingService) Start()        {}
func (s *failingService) Stop() error   { return nil }
func (s *failingService) Status() error { return errors.New("gossip host down") }

func bufferedMsg() *messages.RemoteMessage {
	return &messages.RemoteMessage{
		Envelope: &messages.Envelope{
			Identifier:  "Qmaaa",
			Nonce:       1,
			BlockNumber: 100,
			Payload:     messages.RadioPayload{Identifier: "Qmaaa", NPOI: "0xaa"},
		},
	}
}

func TestHealthz_ReportsEngineState(t *testing.T) {
	registry := shared.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&healthyService{}))

	st := state.NewPersistedState()
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xaa"}, "Qmaaa", 100))
	require.NoError(t, st.Remote.Add(bufferedMsg()))

	svc := NewService(":0", registry, st)
	rec := httptest.NewRecorder()
	svc.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Healthy)
	assert.Equal(t, 1, report.RemoteMessages)
	assert.Equal(t, 1, report.LocalAttestations)
	assert.Len(t, report.Services, 1)
}

func TestHealthz_FailingService(t *testing.T) {
	registry := shared.NewServiceRegistry()
	require.NoError(t, registry.RegisterService(&healthyService{}))
	require.NoError(t, registry.RegisterService(&failingService{}))

	svc := NewService(":0", registry, state.NewPersistedState())
	rec := httptest.NewRecorder()
	svc.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Healthy)
	assert.Len(t, report.Services, 2)
}
