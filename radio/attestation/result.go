package attestation

import (
	"fmt"
)

// ResultType tags the outcome of one comparison.
type ResultType string

// The possible comparison outcomes. None of them are errors: the engine only
// reports whether the local operator agrees with the plurality-by-stake of
// its peers.
const (
	ResultNotFound    ResultType = "NotFound"
	ResultMatch       ResultType = "Match"
	ResultDivergent   ResultType = "Divergent"
	ResultBuildFailed ResultType = "BuildFailed"
)

// ComparisonResult is the verdict for one (deployment, block) pair, carrying
// the local attestation and the full sorted remote list for operator reports.
type ComparisonResult struct {
	Deployment       string        `json:"deployment"`
	BlockNumber      uint64        `json:"block_number"`
	Type             ResultType    `json:"result_type"`
	LocalAttestation *Attestation  `json:"local_attestation,omitempty"`
	Attestations     []Attestation `json:"attestations"`
	Reason           string        `json:"reason,omitempty"`
}

// String renders the one-line summary used in logs and notifications.
func (r ComparisonResult) String() string {
	switch r.Type {
	case ResultNotFound:
		return fmt.Sprintf("%s for deployment %s at block %d: %s", r.Type, r.Deployment, r.BlockNumber, r.Reason)
	case ResultMatch:
		return fmt.Sprintf("POIs match for deployment %s at block %d: %s", r.Deployment, r.BlockNumber, r.LocalAttestation.NPOI)
	case ResultDivergent:
		remote := ""
		if len(r.Attestations) > 0 {
			remote = r.Attestations[0].NPOI
		}
		return fmt.Sprintf(
			"POIs diverged for deployment %s at block %d: local %s, remote %s",
			r.Deployment, r.BlockNumber, r.LocalAttestation.NPOI, remote,
		)
	default:
		return fmt.Sprintf("Could not build comparison for deployment %s at block %d: %s", r.Deployment, r.BlockNumber, r.Reason)
	}
}
