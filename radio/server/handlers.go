package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
)

// CompareRatio summarizes one comparison as a compact ratio string for
// operator dashboards.
type CompareRatio struct {
	Deployment   string `json:"deployment"`
	BlockNumber  uint64 `json:"block_number"`
	CompareRatio string `json:"compare_ratio"`
}

func (s *Service) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"healthy": true})
}

func (s *Service) messagesHandler(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		writeJSON(w, http.StatusOK, s.cfg.State.Remote.All())
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.State.Remote.ForDeployment(identifier))
}

func (s *Service) attestationsHandler(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	block, hasBlock, err := parseBlockParam(r.URL.Query().Get("block"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := filterEntries(s.cfg.State.Local.Flatten(), identifier, block, hasBlock)
	writeJSON(w, http.StatusOK, entries)
}

// comparisonResult runs aggregator and comparator against the current remote
// buffer for one pair, without draining it.
func (s *Service) comparisonResult(r *http.Request, deployment string, block uint64) (attestation.ComparisonResult, error) {
	msgs := s.cfg.State.Remote.Subset(deployment, block)
	remote, err := attestation.ProcessMessages(r.Context(), msgs, s.cfg.Resolver)
	if err != nil {
		return attestation.ComparisonResult{}, err
	}
	return attestation.Compare(block, remote, s.cfg.State.Local, deployment), nil
}

func (s *Service) comparisonResultHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	block, err := strconv.ParseUint(vars["block"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad block number")
		return
	}
	result, err := s.comparisonResult(r, vars["deployment"], block)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// comparisonResults resolves every stored local pair matching the filters.
// Pairs whose aggregation fails are skipped rather than failing the listing.
func (s *Service) comparisonResults(r *http.Request) []attestation.ComparisonResult {
	identifier := r.URL.Query().Get("identifier")
	block, hasBlock, err := parseBlockParam(r.URL.Query().Get("block"))
	if err != nil {
		return nil
	}
	resultType := r.URL.Query().Get("type")

	entries := filterEntries(s.cfg.State.Local.Flatten(), identifier, block, hasBlock)
	results := make([]attestation.ComparisonResult, 0, len(entries))
	for _, entry := range entries {
		result, err := s.comparisonResult(r, entry.Deployment, entry.BlockNumber)
		if err != nil {
			continue
		}
		if resultType != "" && !strings.EqualFold(resultType, string(result.Type)) {
			continue
		}
		results = append(results, result)
	}
	return results
}

func (s *Service) comparisonResultsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.comparisonResults(r))
}

func (s *Service) senderRatioHandler(w http.ResponseWriter, r *http.Request) {
	ratios := make([]CompareRatio, 0)
	for _, result := range s.comparisonResults(r) {
		localNPOI := ""
		if result.LocalAttestation != nil {
			localNPOI = result.LocalAttestation.NPOI
		}
		ratios = append(ratios, CompareRatio{
			Deployment:   result.Deployment,
			BlockNumber:  result.BlockNumber,
			CompareRatio: SenderCountStr(result.Attestations, localNPOI),
		})
	}
	writeJSON(w, http.StatusOK, ratios)
}

func (s *Service) stakeRatioHandler(w http.ResponseWriter, r *http.Request) {
	ratios := make([]CompareRatio, 0)
	for _, result := range s.comparisonResults(r) {
		localNPOI := ""
		if result.LocalAttestation != nil {
			localNPOI = result.LocalAttestation.NPOI
		}
		ratios = append(ratios, CompareRatio{
			Deployment:   result.Deployment,
			BlockNumber:  result.BlockNumber,
			CompareRatio: StakeWeightStr(result.Attestations, localNPOI),
		})
	}
	writeJSON(w, http.StatusOK, ratios)
}

// SenderCountStr renders the sender count of each remote attestation in
// descending stake weight order, separated by '/', with '!' marking the
// attestation whose npoi matches the local one.
func SenderCountStr(atts []attestation.Attestation, localNPOI string) string {
	sorted := make([]attestation.Attestation, len(atts))
	copy(sorted, atts)
	attestation.SortByWeight(sorted)

	var b strings.Builder
	for _, att := range sorted {
		b.WriteString(strconv.Itoa(len(att.Senders)))
		if att.NPOI == localNPOI {
			b.WriteString("!")
		}
		b.WriteString("/")
	}
	return strings.TrimSuffix(b.String(), "/")
}

// StakeWeightStr renders the stake weight of each remote attestation in
// descending stake weight order, separated by '/', with '!' marking the
// attestation whose npoi matches the local one.
func StakeWeightStr(atts []attestation.Attestation, localNPOI string) string {
	sorted := make([]attestation.Attestation, len(atts))
	copy(sorted, atts)
	attestation.SortByWeight(sorted)

	var b strings.Builder
	for _, att := range sorted {
		b.WriteString(strconv.FormatUint(att.StakeWeight, 10))
		if att.NPOI == localNPOI {
			b.WriteString("!")
		}
		b.WriteString("/")
	}
	return strings.TrimSuffix(b.String(), "/")
}

func filterEntries(entries []attestation.Entry, identifier string, block uint64, hasBlock bool) []attestation.Entry {
	filtered := make([]attestation.Entry, 0, len(entries))
	for _, entry := range entries {
		if identifier != "" && entry.Deployment != identifier {
			continue
		}
		if hasBlock && entry.BlockNumber != block {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func parseBlockParam(raw string) (uint64, bool, error) {
	if raw == "" {
		return 0, false, nil
	}
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad block number %q", raw)
	}
	return block, true, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
