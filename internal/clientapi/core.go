package clientapi

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sebas/icd/internal/iap"
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/request"
)

// Scheduler is the subset of *request.Scheduler the Core needs.
type Scheduler interface {
	Submit(id identity.Identity, origin string, tracking any, cb request.ClientCallback) (string, error)
	DisconnectIAP(name string) error
	ForEachIAP(fn func(name string, a *iap.IAP))
	IAPByName(name string) (*iap.IAP, bool)
}

// ConnectArgs is the body of a Connect("su") call.
type ConnectArgs struct {
	Name  string
	Attrs uint32
}

// DisconnectArgs is the body of a Disconnect("s") call.
type DisconnectArgs struct {
	Name string
}

// StatisticsArgs is the body of the "s"-signature GetStatistics overload.
type StatisticsArgs struct {
	Name string
}

// BackgroundKillingArgs is the body of a background_killing_application
// ("ss") call.
type BackgroundKillingArgs struct {
	Application string
	Reason      string
}

// IPInfo is GetIPInfo's reply.
type IPInfo struct {
	IAP           string
	InterfaceName string
}

// Statistics is GetStatistics's reply.
type Statistics struct {
	IAP       string
	ActiveFor time.Duration
}

// Core implements the seven client API methods (spec.md §6) over a
// Request Scheduler.
type Core struct {
	scheduler Scheduler
	post      func(func())
}

// NewCore creates a Core bound to scheduler. Until SetPost is called, every
// method runs its scheduler/IAP access synchronously on the caller's own
// goroutine; a transport binding that serves concurrent callers (httpapi,
// multiple D-Bus callers) must call SetPost with the event loop's Post so
// this Core's access to the Scheduler and its IAPs is serialized the same
// way iap.Deps.Post serializes an IAP's own callbacks.
func NewCore(scheduler Scheduler) *Core {
	return &Core{scheduler: scheduler, post: func(fn func()) { fn() }}
}

// SetPost installs the function Core uses to serialize every method body
// onto the event loop goroutine. Grounded on iap.Deps.Post's same
// direct-call-by-default, Loop.Post-in-production pattern.
func (c *Core) SetPost(post func(func())) {
	if post != nil {
		c.post = post
	}
}

// run executes fn on c.post and blocks until it completes, letting each
// Core method keep its ordinary synchronous-looking signature while still
// only ever touching the Scheduler from the event loop goroutine.
func (c *Core) run(fn func()) {
	done := make(chan struct{})
	c.post(func() {
		fn()
		close(done)
	})
	<-done
}

// Register wires every Core method onto d under the signature the
// original icd_osso_ic_htable table used for it.
func (c *Core) Register(d *Dispatcher) {
	d.Register("Activate", "s", func(body any) (any, error) {
		args, ok := body.(string)
		if !ok {
			return nil, ErrUnsupported
		}
		return c.Activate(args)
	})
	d.Register("Connect", "su", func(body any) (any, error) {
		args, ok := body.(ConnectArgs)
		if !ok {
			return nil, ErrUnsupported
		}
		return c.Connect(args.Name, args.Attrs)
	})
	d.Register("Disconnect", "s", func(body any) (any, error) {
		args, ok := body.(DisconnectArgs)
		if !ok {
			return nil, ErrUnsupported
		}
		return nil, c.Disconnect(args.Name)
	})
	d.Register("GetIPInfo", "", func(body any) (any, error) {
		return c.GetIPInfo()
	})
	d.Register("GetStatistics", "", func(body any) (any, error) {
		return c.GetStatistics("")
	})
	d.Register("GetStatistics", "s", func(body any) (any, error) {
		args, ok := body.(StatisticsArgs)
		if !ok {
			return nil, ErrUnsupported
		}
		return c.GetStatistics(args.Name)
	})
	d.Register("GetState", "", func(body any) (any, error) {
		return c.GetState()
	})
	d.Register("background_killing_application", "ss", func(body any) (any, error) {
		args, ok := body.(BackgroundKillingArgs)
		if !ok {
			return nil, ErrUnsupported
		}
		return nil, c.BackgroundKilling(args.Application, args.Reason)
	})
}

// Activate requests the daemon consider bringing up connectivity
// automatically: no target identity is pinned, so the Policy Facade's
// candidate sources choose the network the same way they would for an
// idle-timer-triggered reconnect.
func (c *Core) Activate(origin string) (reqID string, err error) {
	c.run(func() {
		reqID, err = c.scheduler.Submit(identity.Identity{}, origin, nil, func(request.ClientStatus, string, string) {})
	})
	return
}

// Connect issues a connectivity request for the named (persisted) IAP.
// name is treated as an IAPName-flagged identity (spec.md "persisted
// settings name"); attrs augments the caller's own locality/origin bits.
func (c *Core) Connect(name string, attrs uint32) (reqID string, err error) {
	id := identity.Identity{ID: name, Attrs: identity.Attrs(attrs) | identity.AttrIAPName}
	c.run(func() {
		reqID, err = c.scheduler.Submit(id, "client", nil, func(request.ClientStatus, string, string) {})
	})
	return
}

// Disconnect tears down the named IAP directly, regardless of how many
// requests are bound to it (spec.md §6).
func (c *Core) Disconnect(name string) (err error) {
	c.run(func() {
		err = c.scheduler.DisconnectIAP(name)
	})
	return
}

// activeIAP returns the first CONNECTED IAP found, matching the legacy
// single-active-connection assumption GetIPInfo/GetState's no-arg
// signatures carry over from the original ICD.
func (c *Core) activeIAP() (*iap.IAP, bool) {
	var found *iap.IAP
	c.scheduler.ForEachIAP(func(_ string, a *iap.IAP) {
		if found == nil && a.State == iap.Connected {
			found = a
		}
	})
	return found, found != nil
}

// GetIPInfo reports the interface name of the currently connected IAP.
func (c *Core) GetIPInfo() (info IPInfo, err error) {
	c.run(func() {
		a, ok := c.activeIAP()
		if !ok {
			err = fmt.Errorf("clientapi: no connected IAP")
			return
		}
		info = IPInfo{IAP: a.Name, InterfaceName: a.InterfaceName}
	})
	return
}

// GetStatistics reports how long the given IAP (or, if name is empty, the
// currently connected one) has been up. Per-byte counters are a module
// concern the ABI never surfaces to this core (spec.md's network-module
// ABI callback carries no traffic counters), so only connection duration
// is reported.
func (c *Core) GetStatistics(name string) (stats Statistics, err error) {
	c.run(func() {
		var a *iap.IAP
		var ok bool
		if name == "" {
			a, ok = c.activeIAP()
		} else {
			a, ok = c.scheduler.IAPByName(name)
		}
		if !ok {
			err = fmt.Errorf("clientapi: IAP %q not found", name)
			return
		}
		var activeFor time.Duration
		if !a.ConnectedAt.IsZero() {
			activeFor = time.Since(a.ConnectedAt)
		}
		stats = Statistics{IAP: a.Name, ActiveFor: activeFor}
	})
	return
}

// GetState reports the currently connected IAP's state, or DISCONNECTED
// if none is connected.
func (c *Core) GetState() (state string, err error) {
	c.run(func() {
		if a, ok := c.activeIAP(); ok {
			state = a.State.String()
			return
		}
		state = "DISCONNECTED"
	})
	return
}

// BackgroundKilling notifies the core that the OS killed application in
// the background; this core does not track per-application IAP ownership
// (out of spec's modeled state), so the notification is only logged for
// observability.
func (c *Core) BackgroundKilling(application, reason string) error {
	slog.Info("clientapi: background killing notification", "application", application, "reason", reason)
	return nil
}
