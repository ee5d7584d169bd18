// Package request implements the Request Scheduler (C8): it owns
// request_list, binds each submitted request to a chain of IAP bring-up
// attempts via the Policy Facade, and drives the four completion statuses
// spec.md §4.8 defines back to the client API. Grounded on the teacher's
// internal/signaling/b2bua.CallService/Bridge — an active-registry type
// that coalesces concurrent dial attempts for the same target — and
// Leg.OnStateChange/OnTerminated's synchronous-callback-registration
// contract, generalized here from legs to IAPs.
package request

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sebas/icd/internal/events"
	"github.com/sebas/icd/internal/iap"
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/policy"
)

// ClientStatus is one of the four completion states a submitted request's
// callback may observe (spec.md §4.8).
type ClientStatus int

const (
	StatusCreated ClientStatus = iota
	StatusDisconnected
	StatusBusy
	StatusFailed
)

func (s ClientStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusBusy:
		return "BUSY"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ClientCallback is invoked on every status transition of the request's
// bound IAP, CREATED through the eventual terminal DISCONNECTED or
// FAILED; iapName is empty only for a same-call synchronous FAILED (BUSY
// always carries the name of the IAP that is busy).
type ClientCallback func(status ClientStatus, iapName string, errTag string)

// Request is one submitted connectivity request. callbacks holds one
// entry per Submit call that coalesced onto this request (spec.md "three
// concurrent requests for the same identity... produce three identical
// CREATED callbacks").
type Request struct {
	ID       string
	Identity identity.Identity
	Origin   string
	Tracking any

	iapName   string
	callbacks []ClientCallback
}

// Deps wires the scheduler to its collaborators.
type Deps struct {
	Policy *policy.Policy
	// NewIAP builds a not-yet-connected IAP for name/id/networkType,
	// wiring in the Module Registry chain, Script Runner, Idle Timer, and
	// Event Bus — the Process Supervisor's job. The scheduler only calls
	// Connect/Disconnect on what comes back.
	NewIAP func(name string, id identity.Identity, networkType string) (*iap.IAP, error)
	Bus    *events.Bus
	// IDGen generates request IDs; defaults to uuid.NewString (the
	// teacher's own id-generation dependency throughout b2bua).
	IDGen func() string
}

// Scheduler owns request_list and the live IAP set it drives. Every
// exported method assumes it runs on the single event-loop goroutine
// (spec.md §5), the same assumption internal/iap makes.
type Scheduler struct {
	deps     Deps
	requests map[string]*Request
	iaps     map[string]*iap.IAP
	byIAP    map[string][]string
	// order is request_list in submission order; FindHeadByOrigin scans it
	// head-first, matching the UI Companion's "head request" wording
	// (spec.md §4.9) for the disconnect-confirmation signal.
	order []string
}

// New creates an empty Scheduler.
func New(deps Deps) *Scheduler {
	if deps.IDGen == nil {
		deps.IDGen = uuid.NewString
	}
	return &Scheduler{
		deps:     deps,
		requests: make(map[string]*Request),
		iaps:     make(map[string]*iap.IAP),
		byIAP:    make(map[string][]string),
	}
}

// Submit registers a new connectivity request for id, consulting the
// Policy Facade for an accept / new-IAP / merge / reject decision
// (spec.md §4.8). Concurrent submissions for an identity that already
// has an in-flight or CONNECTED IAP coalesce onto it, so every caller's
// callback fires for each status transition that IAP goes through.
func (s *Scheduler) Submit(id identity.Identity, origin string, tracking any, cb ClientCallback) (string, error) {
	reqID := s.deps.IDGen()
	decision := s.deps.Policy.RequestMake(policy.Request{ID: reqID, Identity: id, Origin: origin})

	switch decision.Kind {
	case policy.DecisionReject:
		slog.Warn("request: submit rejected", "identity", id, "reason", decision.Reason)
		cb(StatusFailed, "", decision.Reason)
		return "", fmt.Errorf("request: rejected: %s", decision.Reason)

	case policy.DecisionMergeInto:
		return s.mergeInto(decision.MergeRequestID, cb)

	case policy.DecisionAccept:
		return s.acceptExisting(reqID, id, origin, tracking, decision.IAPName, cb)

	case policy.DecisionNewIAP:
		return s.createNew(reqID, id, origin, tracking, decision.Identity, cb)

	default:
		cb(StatusFailed, "", "unknown policy decision")
		return "", fmt.Errorf("request: unknown decision kind %v", decision.Kind)
	}
}

func (s *Scheduler) mergeInto(targetID string, cb ClientCallback) (string, error) {
	target, ok := s.requests[targetID]
	if !ok {
		cb(StatusFailed, "", "merge target not found")
		return "", fmt.Errorf("request: merge target %q not found", targetID)
	}
	target.callbacks = append(target.callbacks, cb)
	s.replayCurrentStatus(target, cb)
	return target.ID, nil
}

func (s *Scheduler) acceptExisting(reqID string, id identity.Identity, origin string, tracking any, iapName string, cb ClientCallback) (string, error) {
	a, ok := s.iaps[iapName]
	if !ok {
		cb(StatusFailed, "", "accepted IAP not found")
		return "", fmt.Errorf("request: accepted IAP %q not found", iapName)
	}
	if a.State.IsTearingDown() {
		// Mid-teardown: this request cannot ride along, the caller is
		// expected to retry once it observes DISCONNECTED.
		cb(StatusBusy, iapName, "")
		return "", nil
	}

	req := &Request{ID: reqID, Identity: id, Origin: origin, Tracking: tracking, iapName: iapName, callbacks: []ClientCallback{cb}}
	s.requests[reqID] = req
	s.byIAP[iapName] = append(s.byIAP[iapName], reqID)
	s.order = append(s.order, reqID)

	switch {
	case a.State.IsTerminal():
		// Policy saw this IAP as a live candidate, but it has since torn
		// itself down (idle timeout, peer loss); bring it back up fresh.
		a.Connect()
	case a.State == iap.Connected:
		cb(StatusCreated, iapName, "")
	}
	return reqID, nil
}

func (s *Scheduler) createNew(reqID string, id identity.Identity, origin string, tracking any, target identity.Identity, cb ClientCallback) (string, error) {
	name := target.ID
	if name == "" {
		name = reqID
	}
	a, err := s.deps.NewIAP(name, target, target.Type)
	if err != nil {
		cb(StatusFailed, "", err.Error())
		return "", err
	}

	req := &Request{ID: reqID, Identity: id, Origin: origin, Tracking: tracking, iapName: name, callbacks: []ClientCallback{cb}}
	s.requests[reqID] = req
	s.iaps[name] = a
	s.byIAP[name] = []string{reqID}
	s.order = append(s.order, reqID)

	a.OnCreated = func(a *iap.IAP) { s.onIAPCreated(a) }
	a.OnEnded = func(a *iap.IAP, errTag string) { s.onIAPEnded(a, errTag) }
	a.Connect()
	return reqID, nil
}

// replayCurrentStatus answers a just-merged callback with the bound
// request's current IAP status, if one is already resolvable, so a late
// joiner doesn't wait through transitions it can already observe.
func (s *Scheduler) replayCurrentStatus(req *Request, cb ClientCallback) {
	if req.iapName == "" {
		return
	}
	a, ok := s.iaps[req.iapName]
	if !ok {
		return
	}
	switch {
	case a.State == iap.Connected:
		cb(StatusCreated, req.iapName, "")
	case a.State.IsTearingDown():
		cb(StatusBusy, req.iapName, "")
	}
}

func (s *Scheduler) onIAPCreated(a *iap.IAP) {
	s.notifyAll(a.Name, StatusCreated, "")
}

func (s *Scheduler) onIAPEnded(a *iap.IAP, errTag string) {
	status := StatusDisconnected
	if errTag != "" {
		status = StatusFailed
	}
	s.notifyAll(a.Name, status, errTag)

	for _, reqID := range s.byIAP[a.Name] {
		delete(s.requests, reqID)
		s.removeFromOrder(reqID)
	}
	delete(s.byIAP, a.Name)
	delete(s.iaps, a.Name)
}

// removeFromOrder drops reqID from request_list's submission order.
func (s *Scheduler) removeFromOrder(reqID string) {
	for i, id := range s.order {
		if id == reqID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) notifyAll(iapName string, status ClientStatus, errTag string) {
	for _, reqID := range s.byIAP[iapName] {
		req, ok := s.requests[reqID]
		if !ok {
			continue
		}
		for _, cb := range req.callbacks {
			cb(status, iapName, errTag)
		}
		if s.deps.Bus != nil {
			suffix := events.SuffixRequestEnd
			if status == StatusCreated {
				suffix = events.SuffixCreated
			} else if status == StatusBusy {
				suffix = events.SuffixBusy
			}
			s.deps.Bus.Publish(events.RequestSubject(reqID, suffix), status.String())
		}
	}
}

// Cancel withdraws reqID. If it was the last request bound to its IAP,
// the IAP is torn down; otherwise the IAP keeps running for the
// remaining bound requests.
func (s *Scheduler) Cancel(reqID string) error {
	req, ok := s.requests[reqID]
	if !ok {
		return fmt.Errorf("request: unknown request %q", reqID)
	}
	delete(s.requests, reqID)
	s.removeFromOrder(reqID)

	remaining := s.byIAP[req.iapName][:0]
	for _, id := range s.byIAP[req.iapName] {
		if id != reqID {
			remaining = append(remaining, id)
		}
	}
	s.byIAP[req.iapName] = remaining

	if len(remaining) > 0 {
		return nil
	}
	delete(s.byIAP, req.iapName)
	if a, ok := s.iaps[req.iapName]; ok && !a.State.IsTerminal() {
		a.Disconnect("")
	}
	return nil
}

// DisconnectIAP tears down the named IAP directly (used by the Client API
// Surface's Disconnect(name) method, spec.md §6) regardless of how many
// requests are bound to it; every bound request observes the resulting
// DISCONNECTED/FAILED transition through notifyAll, same as an idle-timeout
// or peer-initiated teardown.
func (s *Scheduler) DisconnectIAP(name string) error {
	a, ok := s.iaps[name]
	if !ok {
		return fmt.Errorf("request: IAP %q not found", name)
	}
	if !a.State.IsTerminal() {
		a.Disconnect("")
	}
	return nil
}

// ForEachIAP calls fn for every live IAP, in no particular order.
func (s *Scheduler) ForEachIAP(fn func(name string, a *iap.IAP)) {
	for name, a := range s.iaps {
		fn(name, a)
	}
}

// FindIAP locates the live IAP whose identity matches id under the
// NULL-safe identity-equality rule (identity.Identity.Equal).
func (s *Scheduler) FindIAP(id identity.Identity) (*iap.IAP, bool) {
	for _, a := range s.iaps {
		if a.Identity.Equal(id) {
			return a, true
		}
	}
	return nil, false
}

// IAPByName locates a live IAP by its exact name, used by the UI Companion
// to resolve a save(iap, new_name) signal.
func (s *Scheduler) IAPByName(name string) (*iap.IAP, bool) {
	a, ok := s.iaps[name]
	return a, ok
}

// FindHeadByOrigin returns the oldest still-bound request whose Origin
// matches origin, used by the UI Companion's disconnect(pressed) signal
// (spec.md §4.9: "cancels the head request with origin CONN_UI").
func (s *Scheduler) FindHeadByOrigin(origin string) (string, bool) {
	for _, reqID := range s.order {
		if req, ok := s.requests[reqID]; ok && req.Origin == origin {
			return reqID, true
		}
	}
	return "", false
}
