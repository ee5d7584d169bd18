// Package clientapi implements the Client API Surface (C10): a
// transport-agnostic dispatch table mapping (interface, method, signature)
// to a handler, plus the seven client methods themselves (spec.md §6).
// Grounded on icd_osso_ic_htable in the original implementation
// (original_source/icd/icd_osso_ic.c) — an array of
// {interface, method, signature, handler} rows, looked up by exact match
// with a standardized "unsupported" reply on mismatch. GetStatistics is
// registered twice, once per signature ("" and "s"), to overload on
// whether a specific IAP name was given; this core reproduces that
// exactly rather than collapsing it into optional-argument handling.
package clientapi

import "errors"

// Interface is the client-facing method namespace every MethodKey in this
// core uses, named after the original icd_osso_ic_htable rows' shared
// ICD_DBUS_INTERFACE constant.
const Interface = "com.nokia.icd"

// MethodKey identifies one dispatch table row.
type MethodKey struct {
	Interface string
	Method    string
	Signature string
}

// Handler processes one call body and produces a reply.
type Handler func(body any) (any, error)

// ErrUnsupported is the standardized reply for an unknown method or a
// signature mismatch (spec.md §6).
var ErrUnsupported = errors.New("clientapi: unsupported method or signature")

// Dispatcher routes (method, signature) pairs to registered handlers.
type Dispatcher struct {
	handlers map[MethodKey]Handler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[MethodKey]Handler)}
}

// Register adds a handler for method/signature under Interface.
func (d *Dispatcher) Register(method, signature string, h Handler) {
	d.handlers[MethodKey{Interface: Interface, Method: method, Signature: signature}] = h
}

// Dispatch looks up the handler for method/signature and invokes it with
// body. A missing (method, signature) pair returns ErrUnsupported rather
// than calling any handler with the wrong body shape.
func (d *Dispatcher) Dispatch(method, signature string, body any) (any, error) {
	h, ok := d.handlers[MethodKey{Interface: Interface, Method: method, Signature: signature}]
	if !ok {
		return nil, ErrUnsupported
	}
	return h(body)
}
