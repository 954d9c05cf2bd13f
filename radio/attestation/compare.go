package attestation

// Compare matches the local attestation for (deployment, block) against the
// aggregated remote attestations. The verdict follows the heaviest remote,
// the attestation with the largest stake weight (ties broken by lexicographic
// npoi order): the engine is not a voting system, it reports whether the
// local operator agrees with the plurality-by-stake. The function is pure;
// callers prune the remote buffer afterwards whatever the verdict.
func Compare(block uint64, remote []Attestation, locals *Store, deployment string) ComparisonResult {
	local, ok := locals.GetLocal(deployment, block)
	if !ok {
		return ComparisonResult{
			Deployment:   deployment,
			BlockNumber:  block,
			Type:         ResultNotFound,
			Attestations: remote,
			Reason:       "no local attestation",
		}
	}
	if len(remote) == 0 {
		return ComparisonResult{
			Deployment:       deployment,
			BlockNumber:      block,
			Type:             ResultNotFound,
			LocalAttestation: &local,
			Attestations:     remote,
			Reason:           "no remote attestations",
		}
	}

	sorted := make([]Attestation, len(remote))
	copy(sorted, remote)
	SortByWeight(sorted)

	heaviest := sorted[0]
	if heaviest.NPOI == local.NPOI {
		return ComparisonResult{
			Deployment:       deployment,
			BlockNumber:      block,
			Type:             ResultMatch,
			LocalAttestation: &local,
			Attestations:     sorted,
		}
	}
	return ComparisonResult{
		Deployment:       deployment,
		BlockNumber:      block,
		Type:             ResultDivergent,
		LocalAttestation: &local,
		Attestations:     sorted,
	}
}
