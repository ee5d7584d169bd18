// Package policy implements the Policy Facade (C5): given a connectivity
// request, decide whether to accept an existing IAP, spin up a new one,
// merge into another in-flight request, or reject outright. Ranking
// heuristics beyond the documented priority table (what exactly makes one
// WLAN network preferable to another of the same type) are out of scope —
// this package only orders the candidates the caller's CandidateSources
// already produced.
package policy

import (
	"sort"

	"github.com/sebas/icd/internal/identity"
)

// DecisionKind is the outcome of a RequestMake call.
type DecisionKind int

const (
	DecisionAccept DecisionKind = iota
	DecisionNewIAP
	DecisionMergeInto
	DecisionReject
)

func (d DecisionKind) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionNewIAP:
		return "new_iap"
	case DecisionMergeInto:
		return "merge_into"
	case DecisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision is the result of RequestMake.
type Decision struct {
	Kind DecisionKind

	// IAPName is set for DecisionAccept (existing IAP to attach to).
	IAPName string

	// Identity is set for DecisionNewIAP.
	Identity identity.Identity

	// MergeRequestID is set for DecisionMergeInto.
	MergeRequestID string

	// Reason is set for DecisionReject, and otherwise empty.
	Reason string
}

// Candidate is one network a policy evaluation is choosing between.
type Candidate struct {
	Identity identity.Identity
	// ExistingIAP is non-empty when this candidate already has a live IAP
	// that RequestMake could Accept into.
	ExistingIAP string
	// Saved reports whether the candidate corresponds to a persisted
	// settings entry (spec.md "saved IAP" bonus).
	Saved bool
	// PreferredService reports whether the candidate matches the
	// process-lifetime preferred-service type/id (spec.md +500 bonus).
	PreferredService bool

	score int
}

// Request is the subset of Request Scheduler state the policy needs to
// make a decision; the scheduler owns the full type. Identity/Origin are
// the identity actually requested — CandidateSources close over the
// settings/scan-cache facades but still need this to know what they're
// being asked to resolve.
type Request struct {
	ID         string
	Identity   identity.Identity
	Origin     string
	Attributes uint32
}

// CandidateSource produces zero or more Candidates for req. Sources are
// tried in order (spec.md "invoked before each bring-up attempt and after
// each failure"); the chain-of-responsibility composition mirrors the
// teacher's b2bua.ChainResolver, generalized from URI resolution to
// network-candidate discovery.
type CandidateSource func(req Request) []Candidate

// Policy implements RequestMake by combining an ordered CandidateSources
// chain with the priority table's scoring pass.
type Policy struct {
	sources []CandidateSource
}

// New builds a Policy trying sources in order; the first source to return
// any candidates wins (ChainResolver's CanResolve/Resolve split collapses
// here into "non-empty result").
func New(sources ...CandidateSource) *Policy {
	return &Policy{sources: sources}
}

// priority is the spec's network-type priority table (spec.md §6).
func priority(networkType string) int {
	switch {
	case hasPrefix(networkType, "WLAN_"):
		return 60
	case networkType == "WIMAX":
		return 50
	case networkType == "GPRS":
		return 45
	case networkType == "DUN_GSM_PS", networkType == "DUN_CDMA_PSD":
		return 40
	case networkType == "DUN_GSM_CS", networkType == "DUN_CDMA_CSD", networkType == "DUN_CDMA_QNC":
		return 30
	default:
		return 0
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// score applies the priority table plus the preferred-service and
// saved-IAP bonuses.
func score(c Candidate) int {
	s := priority(c.Identity.Type)
	if c.PreferredService {
		s += 500
	}
	if c.Saved {
		s += 100
	}
	return s
}

// RequestMake evaluates req against the candidate sources and returns the
// highest-scoring decision. Ties break by discovery order (stable sort),
// matching the teacher's "try resolvers in the order given" semantics.
func (p *Policy) RequestMake(req Request) Decision {
	var candidates []Candidate
	for _, source := range p.sources {
		found := source(req)
		if len(found) > 0 {
			candidates = found
			break
		}
	}

	if len(candidates) == 0 {
		return Decision{Kind: DecisionReject, Reason: "no candidate network available"}
	}

	for i := range candidates {
		candidates[i].score = score(candidates[i])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	best := candidates[0]
	if best.ExistingIAP != "" {
		return Decision{Kind: DecisionAccept, IAPName: best.ExistingIAP}
	}
	return Decision{Kind: DecisionNewIAP, Identity: best.Identity}
}
