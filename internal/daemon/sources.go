package daemon

import (
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/policy"
	"github.com/sebas/icd/internal/request"
	"github.com/sebas/icd/internal/settings"
)

// existingIAPSource reports the already-live IAP matching req's identity,
// if any, as an Accept candidate. Tried first so a request that coalesces
// onto an in-flight or CONNECTED attempt never spins up a second one,
// grounded on the teacher's b2bua.ChainResolver "first resolver to answer
// wins" chain-of-responsibility composition. getSched is indirected
// through a function because the Scheduler and the Policy that feeds it
// are constructed in the same breath (request.New needs a Deps.Policy,
// the Policy's sources need the Scheduler); by the time this source is
// actually invoked (a later Submit call), the daemon has long since
// assigned its scheduler field.
func existingIAPSource(getSched func() *request.Scheduler) policy.CandidateSource {
	return func(req policy.Request) []policy.Candidate {
		if req.Identity.IsZero() {
			return nil
		}
		a, ok := getSched().FindIAP(req.Identity)
		if !ok {
			return nil
		}
		return []policy.Candidate{{Identity: req.Identity, ExistingIAP: a.Name}}
	}
}

// savedSource resolves a request naming a persisted settings entry
// (identity.AttrIAPName) to the network type recorded for it, marking the
// candidate Saved so the scoring pass applies spec.md's saved-IAP bonus.
func savedSource(store *settings.Facade, registry *module.Registry) policy.CandidateSource {
	return func(req policy.Request) []policy.Candidate {
		if !req.Identity.Attrs.IsIAPName() || req.Identity.ID == "" {
			return nil
		}
		networkType := store.GetString(req.Identity.ID, "type")
		if networkType == "" {
			return nil
		}
		if _, err := registry.ChainFor(networkType); err != nil {
			return nil
		}
		id := identity.Identity{Type: networkType, Attrs: req.Identity.Attrs, ID: req.Identity.ID}
		return []policy.Candidate{{Identity: id, Saved: true}}
	}
}

// requestedSource falls back to the identity the caller asked for
// verbatim, provided the module registry can actually chain its network
// type; this is the terminal link in the chain, matching a request for an
// ad-hoc (non-persisted) identity such as Connect's IAPName-flagged arg.
func requestedSource(registry *module.Registry) policy.CandidateSource {
	return func(req policy.Request) []policy.Candidate {
		if req.Identity.IsZero() {
			return nil
		}
		if _, err := registry.ChainFor(req.Identity.Type); err != nil {
			return nil
		}
		return []policy.Candidate{{Identity: req.Identity}}
	}
}

// activateSource answers an Activate's zero identity by offering every
// registered network type as a candidate, letting the priority table
// (policy.score) pick the best one — the automatic-reconnect case spec.md
// describes for Activate and for idle-timer-triggered reconnects.
// preferredType reads the process-lifetime preferred-service network type
// (spec.md §5 "global preferred-service strings... written only by the
// preferred-service initializer"); empty means none configured.
func activateSource(registry *module.Registry, preferredType func() string) policy.CandidateSource {
	return func(req policy.Request) []policy.Candidate {
		if !req.Identity.IsZero() {
			return nil
		}
		pref := preferredType()
		var candidates []policy.Candidate
		registry.ForEach(func(networkType string, _ module.Module) {
			candidates = append(candidates, policy.Candidate{
				Identity:         identity.Identity{Type: networkType},
				PreferredService: pref != "" && networkType == pref,
			})
		})
		return candidates
	}
}
