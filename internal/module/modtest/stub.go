// Package modtest provides a minimal, deterministic Module implementation
// used by the module, request, remote, ui, daemon and client API tests to
// exercise the
// bring-up/tear-down protocol without a real link technology.
package modtest

import (
	"context"

	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
)

// Stub is a configurable in-process test module. Each layer's behavior is
// driven by a Script entry; the zero value replies StatusOK immediately.
type Stub struct {
	module.Base

	NameValue string
	Layers    module.LayerSet
	Next      string
	HasNext   bool

	// Scripts customizes the status/identity/iface/env/errTag a given
	// layer reports; callers mutate these before driving a test.
	Scripts map[module.Layer]func(id identity.Identity) (module.Status, identity.Identity, string, module.EnvBag, string)

	// Calls records invocation order for assertions.
	Calls []string
}

// New creates a stub implementing the given layers.
func New(name string, layers module.LayerSet) *Stub {
	return &Stub{
		NameValue: name,
		Layers:    layers,
		Scripts:   make(map[module.Layer]func(identity.Identity) (module.Status, identity.Identity, string, module.EnvBag, string)),
	}
}

// Chain sets the NextLayer hint.
func (s *Stub) Chain(networkType string) *Stub {
	s.Next = networkType
	s.HasNext = true
	return s
}

func (s *Stub) Name() string            { return s.NameValue }
func (s *Stub) Implements() module.LayerSet { return s.Layers }
func (s *Stub) NextLayer() (string, bool)   { return s.Next, s.HasNext }

func (s *Stub) run(layer module.Layer, id identity.Identity, cb module.Callback) {
	s.Calls = append(s.Calls, layer.String()+":"+s.NameValue)
	if script, ok := s.Scripts[layer]; ok {
		status, newID, iface, env, errTag := script(id)
		cb(status, newID, iface, env, errTag)
		return
	}
	cb(module.StatusOK, identity.Identity{}, "", nil, "")
}

func (s *Stub) LinkUp(_ context.Context, id identity.Identity, _ module.Token, cb module.Callback) {
	s.run(module.LayerLink, id, cb)
}
func (s *Stub) LinkDown(_ context.Context, id identity.Identity, _ string, _ module.Token, cb module.Callback) {
	s.run(module.LayerLink, id, cb)
}
func (s *Stub) LinkPostUp(_ context.Context, id identity.Identity, _ string, _ module.Token, cb module.Callback) {
	s.run(module.LayerLinkPost, id, cb)
}
func (s *Stub) LinkPreDown(_ context.Context, id identity.Identity, _ string, _ module.Token, cb module.Callback) {
	s.run(module.LayerLinkPost, id, cb)
}
func (s *Stub) IPUp(_ context.Context, id identity.Identity, _ string, _ module.Token, cb module.Callback) {
	s.run(module.LayerIP, id, cb)
}
func (s *Stub) IPDown(_ context.Context, id identity.Identity, _ string, _ module.Token, cb module.Callback) {
	s.run(module.LayerIP, id, cb)
}
func (s *Stub) ServiceUp(_ context.Context, id identity.Identity, _ string, _ module.Token, cb module.Callback) {
	s.run(module.LayerService, id, cb)
}
func (s *Stub) ServiceDown(_ context.Context, id identity.Identity, _ string, _ module.Token, cb module.Callback) {
	s.run(module.LayerService, id, cb)
}
