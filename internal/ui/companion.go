// Package ui implements the UI Companion (C9): it translates the three
// inbound UI signals (spec.md §4.9) into Request Scheduler actions, and
// carries the one outbound notification the core owes the UI back — that
// an unanswered save dialog is moot because tear-down started first.
// Grounded on the teacher's internal/signaling/routing handlers: one small
// single-purpose type per inbound signal, each given only the collaborator
// it needs.
package ui

import (
	"log/slog"

	"github.com/sebas/icd/internal/events"
	"github.com/sebas/icd/internal/iap"
)

// OriginUI is the request Origin the disconnect-confirmation dialog is
// raised for (spec.md "attributes: bitfield of origins (CONN_UI, ...)").
const OriginUI = "CONN_UI"

// Scheduler is the subset of *request.Scheduler the Companion needs. Kept
// as an interface so tests can substitute a minimal fake instead of
// standing up a full scheduler.
type Scheduler interface {
	FindHeadByOrigin(origin string) (string, bool)
	Cancel(reqID string) error
	IAPByName(name string) (*iap.IAP, bool)
}

// Companion wires UI signals to the scheduler.
type Companion struct {
	scheduler Scheduler
	bus       *events.Bus
}

// New creates a Companion. bus may be nil (outbound notifications are then
// simply dropped, the same as every other collaborator's nil-Bus case).
func New(scheduler Scheduler, bus *events.Bus) *Companion {
	return &Companion{scheduler: scheduler, bus: bus}
}

// Disconnect handles the UI's disconnect(bool pressed) signal. pressed
// cancels the head request with origin CONN_UI; otherwise the dialog is
// acknowledged with no state change (spec.md §4.9).
func (c *Companion) Disconnect(pressed bool) {
	if !pressed {
		slog.Debug("ui: disconnect dialog acknowledged without confirmation")
		return
	}
	reqID, ok := c.scheduler.FindHeadByOrigin(OriginUI)
	if !ok {
		slog.Debug("ui: disconnect pressed but no CONN_UI request is pending")
		return
	}
	if err := c.scheduler.Cancel(reqID); err != nil {
		slog.Warn("ui: disconnect cancel failed", "request", reqID, "error", err)
	}
}

// Save handles the UI's save(iap, new_name) signal: commits a pending
// SAVING transition under newName. A save for an IAP that is no longer
// SAVING (e.g. the dialog already raced a teardown) is a silent no-op,
// same as IAP.Rename's own guard. Only the in-memory IAP is renamed; the
// settings entry is not moved by this call.
func (c *Companion) Save(iapName, newName string) {
	a, ok := c.scheduler.IAPByName(iapName)
	if !ok {
		slog.Warn("ui: save for unknown IAP dropped", "iap", iapName)
		return
	}
	a.Rename(newName)
}

// Retry handles the UI's retry(identity, automatic[, silent]) signal.
// Retrying a connection attempt is out of this core's scope (spec.md
// §4.9); the signal is logged so the eventual caller (the client API's
// own Connect path) can be wired in without changing this surface.
func (c *Companion) Retry(identityID string, automatic bool, silent ...bool) {
	slog.Debug("ui: retry signal received", "identity", identityID, "automatic", automatic, "silent", len(silent) > 0 && silent[0])
}

// CancelSaveDialog implements iap.Deps.CancelSaveDialog: tear-down started
// before an outstanding save dialog was answered, so the UI is told its
// pending call is moot (spec.md §4.9 "save-cancel pending-call
// cancellation").
func (c *Companion) CancelSaveDialog(a *iap.IAP) {
	slog.Info("ui: cancelling save dialog raced by teardown", "iap", a.Name)
	if c.bus != nil {
		c.bus.Publish(events.IAPSubject(a.Name, events.SuffixSaveCancelled), nil)
	}
}
