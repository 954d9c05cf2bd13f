package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
)

type fakeResolver struct {
	stakes map[common.Address]uint64
}

func (f *fakeResolver) IndexerOf(_ context.Context, signer common.Address) (common.Address, error) {
	return signer, nil
}

func (f *fakeResolver) StakeOf(_ context.Context, indexer common.Address) (uint64, error) {
	return f.stakes[indexer], nil
}

func remoteMsg(signer byte, identifier string, block, nonce uint64, npoi string) *messages.RemoteMessage {
	return &messages.RemoteMessage{
		Envelope: &messages.Envelope{
			Identifier:  identifier,
			Nonce:       nonce,
			Network:     "mainnet",
			BlockNumber: block,
			BlockHash:   "0xabc",
			Payload:     messages.RadioPayload{Identifier: identifier, NPOI: npoi},
		},
		Signer:     common.BytesToAddress([]byte{signer}),
		ReceivedAt: int64(nonce),
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *state.PersistedState) {
	t.Helper()
	st := state.NewPersistedState()
	resolver := &fakeResolver{stakes: map[common.Address]uint64{
		common.BytesToAddress([]byte{1}): 10,
		common.BytesToAddress([]byte{2}): 20,
	}}
	svc := NewService(&Config{Port: 0, State: st, Resolver: resolver})
	ts := httptest.NewServer(svc.server.Handler)
	t.Cleanup(ts.Close)
	return ts, st
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	var health map[string]bool
	getJSON(t, ts.URL+"/health", &health)
	assert.True(t, health["healthy"])
}

func TestMessagesEndpoint_FilterByIdentifier(t *testing.T) {
	ts, st := newTestServer(t)
	require.NoError(t, st.Remote.Add(remoteMsg(1, "Qmaaa", 100, 1, "0xaa")))
	require.NoError(t, st.Remote.Add(remoteMsg(2, "Qmbbb", 100, 2, "0xbb")))

	var all []json.RawMessage
	getJSON(t, ts.URL+"/api/v1/messages", &all)
	assert.Len(t, all, 2)

	var filtered []struct {
		Envelope struct {
			Identifier string `json:"Identifier"`
		} `json:"envelope"`
	}
	getJSON(t, ts.URL+"/api/v1/messages?identifier=Qmaaa", &filtered)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Qmaaa", filtered[0].Envelope.Identifier)
}

func TestAttestationsEndpoint_Filters(t *testing.T) {
	ts, st := newTestServer(t)
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xaa"}, "Qmaaa", 100))
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xbb"}, "Qmaaa", 110))
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xcc"}, "Qmbbb", 100))

	var entries []attestation.Entry
	getJSON(t, ts.URL+"/api/v1/attestations", &entries)
	assert.Len(t, entries, 3)

	getJSON(t, ts.URL+"/api/v1/attestations?identifier=Qmaaa", &entries)
	assert.Len(t, entries, 2)

	getJSON(t, ts.URL+"/api/v1/attestations?identifier=Qmaaa&block=110", &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xbb", entries[0].Attestation.NPOI)
}

func TestComparisonResultEndpoint_DoesNotDrainBuffer(t *testing.T) {
	ts, st := newTestServer(t)
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xaa", StakeWeight: 5}, "Qmaaa", 100))
	require.NoError(t, st.Remote.Add(remoteMsg(1, "Qmaaa", 100, 1, "0xaa")))

	var result attestation.ComparisonResult
	getJSON(t, ts.URL+"/api/v1/comparison-result/Qmaaa/100", &result)
	assert.Equal(t, attestation.ResultMatch, result.Type)

	// On-demand comparison is read-only: the buffer keeps its messages.
	assert.Equal(t, 1, st.Remote.Len())
}

func TestComparisonResultsEndpoint_TypeFilter(t *testing.T) {
	ts, st := newTestServer(t)
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xaa", StakeWeight: 5}, "Qmaaa", 100))
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xaa", StakeWeight: 5}, "Qmbbb", 100))
	require.NoError(t, st.Remote.Add(remoteMsg(1, "Qmaaa", 100, 1, "0xaa")))
	require.NoError(t, st.Remote.Add(remoteMsg(2, "Qmbbb", 100, 2, "0xbb")))

	var results []attestation.ComparisonResult
	getJSON(t, ts.URL+"/api/v1/comparison-results", &results)
	assert.Len(t, results, 2)

	getJSON(t, ts.URL+"/api/v1/comparison-results?type=Divergent", &results)
	require.Len(t, results, 1)
	assert.Equal(t, "Qmbbb", results[0].Deployment)
}

func TestRatioEndpoints(t *testing.T) {
	ts, st := newTestServer(t)
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xaa", StakeWeight: 5}, "Qmaaa", 100))
	// Heaviest remote disagrees (stake 20), the matching one has stake 10.
	require.NoError(t, st.Remote.Add(remoteMsg(1, "Qmaaa", 100, 1, "0xaa")))
	require.NoError(t, st.Remote.Add(remoteMsg(2, "Qmaaa", 100, 2, "0xbb")))

	var ratios []CompareRatio
	getJSON(t, ts.URL+"/api/v1/ratios/stake", &ratios)
	require.Len(t, ratios, 1)
	assert.Equal(t, "20/10!", ratios[0].CompareRatio)

	getJSON(t, ts.URL+"/api/v1/ratios/senders", &ratios)
	require.Len(t, ratios, 1)
	assert.Equal(t, "1/1!", ratios[0].CompareRatio)
}

func TestSenderCountStr(t *testing.T) {
	atts := []attestation.Attestation{
		{NPOI: "0xaa", StakeWeight: 10, Senders: []common.Address{common.BytesToAddress([]byte{1})}},
		{NPOI: "0xbb", StakeWeight: 30, Senders: []common.Address{
			common.BytesToAddress([]byte{2}),
			common.BytesToAddress([]byte{3}),
		}},
	}
	assert.Equal(t, "2/1!", SenderCountStr(atts, "0xaa"))
	assert.Equal(t, "2!/1", SenderCountStr(atts, "0xbb"))
	assert.Equal(t, "2/1", SenderCountStr(atts, "0xcc"))
	assert.Equal(t, "", SenderCountStr(nil, "0xaa"))
}

func TestStakeWeightStr(t *testing.T) {
	atts := []attestation.Attestation{
		{NPOI: "0xaa", StakeWeight: 10},
		{NPOI: "0xbb", StakeWeight: 30},
	}
	assert.Equal(t, "30/10!", StakeWeightStr(atts, "0xaa"))
	assert.Equal(t, "30!/10", StakeWeightStr(atts, "0xbb"))
}

func TestBadBlockParam(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/attestations?block=abc")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
