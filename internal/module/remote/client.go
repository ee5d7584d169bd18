package remote

import (
	"context"
	"fmt"

	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/module"
)

// Module is a network module whose four layer functions run inside an
// out-of-process host, reached over the Pool. It satisfies module.Module
// and is registered into module.Registry exactly like an in-process one
// (spec.md §6: "the registry does not distinguish local from remote
// modules").
type Module struct {
	module.Base

	name        string
	networkType string
	layers      module.LayerSet
	next        string
	hasNext     bool
	pool        *Pool
}

// NewModule wires a remote module for networkType, backed by pool.
func NewModule(name, networkType string, layers module.LayerSet, pool *Pool) *Module {
	return &Module{name: name, networkType: networkType, layers: layers, pool: pool}
}

// Chain sets the NextLayer hint, mirroring modtest.Stub.Chain for parity
// in wiring code that builds chains generically.
func (m *Module) Chain(networkType string) *Module {
	m.next = networkType
	m.hasNext = true
	return m
}

func (m *Module) Name() string              { return m.name }
func (m *Module) Implements() module.LayerSet { return m.layers }
func (m *Module) NextLayer() (string, bool)   { return m.next, m.hasNext }

func (m *Module) invoke(ctx context.Context, o op, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	client, err := m.pool.client(m.networkType)
	if err != nil {
		cb(module.StatusError, identity.Identity{}, "", nil, fmt.Sprintf("module/remote: %v", err))
		return
	}

	req, err := encodeRequest(o, id, iface, token)
	if err != nil {
		cb(module.StatusError, identity.Identity{}, "", nil, fmt.Sprintf("module/remote: %v", err))
		return
	}

	resp, err := client.InvokeLayer(ctx, req)
	if err != nil {
		cb(module.StatusError, identity.Identity{}, "", nil, fmt.Sprintf("module/remote: rpc failed: %v", err))
		return
	}

	status, newID, newIface, env, errTag, err := decodeResponse(resp)
	if err != nil {
		cb(module.StatusError, identity.Identity{}, "", nil, fmt.Sprintf("module/remote: %v", err))
		return
	}
	cb(status, newID, newIface, env, errTag)
}

func (m *Module) LinkUp(ctx context.Context, id identity.Identity, token module.Token, cb module.Callback) {
	m.invoke(ctx, opLinkUp, id, "", token, cb)
}
func (m *Module) LinkDown(ctx context.Context, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	m.invoke(ctx, opLinkDown, id, iface, token, cb)
}
func (m *Module) LinkPostUp(ctx context.Context, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	m.invoke(ctx, opLinkPostUp, id, iface, token, cb)
}
func (m *Module) LinkPreDown(ctx context.Context, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	m.invoke(ctx, opLinkPreDown, id, iface, token, cb)
}
func (m *Module) IPUp(ctx context.Context, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	m.invoke(ctx, opIPUp, id, iface, token, cb)
}
func (m *Module) IPDown(ctx context.Context, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	m.invoke(ctx, opIPDown, id, iface, token, cb)
}
func (m *Module) ServiceUp(ctx context.Context, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	m.invoke(ctx, opServiceUp, id, iface, token, cb)
}
func (m *Module) ServiceDown(ctx context.Context, id identity.Identity, iface string, token module.Token, cb module.Callback) {
	m.invoke(ctx, opServiceDown, id, iface, token, cb)
}
