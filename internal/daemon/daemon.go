// Package daemon implements the Process Supervisor (C12): it wires every
// other component (C1-C11) together in dependency order and owns process
// lifetime, grounded on the teacher's app.SwitchBoard/NewServer
// construction function and cmd/signaling/main.go entrypoint.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sebas/icd/internal/clientapi"
	"github.com/sebas/icd/internal/clientapi/httpapi"
	"github.com/sebas/icd/internal/config"
	"github.com/sebas/icd/internal/eventloop"
	"github.com/sebas/icd/internal/events"
	"github.com/sebas/icd/internal/iap"
	"github.com/sebas/icd/internal/identity"
	"github.com/sebas/icd/internal/idletimer"
	"github.com/sebas/icd/internal/module"
	"github.com/sebas/icd/internal/module/remote"
	"github.com/sebas/icd/internal/policy"
	"github.com/sebas/icd/internal/request"
	"github.com/sebas/icd/internal/scancache"
	"github.com/sebas/icd/internal/script"
	"github.com/sebas/icd/internal/settings"
	"github.com/sebas/icd/internal/ui"
)

// PreferredService is the process-lifetime preferred-service network type
// (spec.md §5: "written only by the preferred-service initializer, read
// by the priority computation"). The zero value means no preference is
// configured.
type PreferredService struct {
	Type string
}

// Daemon owns every collaborator built from a *config.Config and the
// event loop that serializes access to them.
type Daemon struct {
	cfg *config.Config

	loop       *eventloop.Loop
	bus        *events.Bus
	registry   *module.Registry
	pool       *remote.Pool
	runner     *script.Runner
	store      *settings.Facade
	cache      *scancache.Cache
	idle       *idletimer.Timer
	pol        *policy.Policy
	scheduler  *request.Scheduler
	companion  *ui.Companion
	core       *clientapi.Core
	dispatcher *clientapi.Dispatcher
	httpServer *httpapi.Server

	// Preferred is the process-lifetime preferred-service type; callers
	// may set it once at startup before Run.
	Preferred PreferredService

	drainTimeout time.Duration
	// stopLoop cancels the context Run derived for the event loop.
	// Shutdown calls it once draining settles, so the loop goroutine
	// actually exits instead of waiting on the caller to also cancel the
	// context it originally passed to Run.
	stopLoop context.CancelFunc
}

// New builds every collaborator in dependency order and returns a ready
// (but not yet running) Daemon.
func New(cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:          cfg,
		drainTimeout: cfg.ShutdownDrainTimeout,
	}

	d.loop = eventloop.New(256)
	d.bus = events.NewBus()
	d.store = settings.New(cfg.SettingsRoot, d.bus)
	d.cache = scancache.New(d.bus)
	d.store.SubscribeDeletions(func(name string) { d.cache.RemoveIAP(name) })

	d.runner = script.NewRunner(cfg.ScriptTimeout)

	d.registry = module.NewRegistry()
	if err := d.wireRemoteModules(); err != nil {
		return nil, err
	}

	d.idle = idletimer.New(cfg.IdleTimeoutFor, func(iapName string) {
		d.loop.Post(func() {
			if err := d.scheduler.DisconnectIAP(iapName); err != nil {
				slog.Warn("daemon: idle-timeout disconnect failed", "iap", iapName, "error", err)
			}
		})
	})

	d.pol = policy.New(
		existingIAPSource(func() *request.Scheduler { return d.scheduler }),
		savedSource(d.store, d.registry),
		requestedSource(d.registry),
		activateSource(d.registry, func() string { return d.Preferred.Type }),
	)

	d.scheduler = request.New(request.Deps{Policy: d.pol, NewIAP: d.newIAP, Bus: d.bus})
	d.companion = ui.New(d.scheduler, d.bus)

	d.core = clientapi.NewCore(d.scheduler)
	d.core.SetPost(d.loop.Post)
	d.dispatcher = clientapi.NewDispatcher()
	d.core.Register(d.dispatcher)

	d.httpServer = httpapi.NewServer(cfg.BindAddr, d.core)

	return d, nil
}

// wireRemoteModules registers one remote.Module per cfg.ModuleHosts entry,
// backed by a single gRPC pool spanning every configured host. A module
// host is assumed to implement the full layer set; the registry's
// Implements()-gated dispatch means an unimplemented layer the host
// replies about is simply never invoked in practice, same as an
// in-process module declaring a narrower LayerSet.
func (d *Daemon) wireRemoteModules() error {
	if len(d.cfg.ModuleHosts) == 0 {
		return nil
	}
	poolCfg := remote.DefaultPoolConfig()
	poolCfg.Addresses = make(map[string][]string, len(d.cfg.ModuleHosts))
	for networkType, addr := range d.cfg.ModuleHosts {
		poolCfg.Addresses[networkType] = []string{addr}
	}
	pool, err := remote.NewPool(poolCfg)
	if err != nil {
		return fmt.Errorf("daemon: remote module pool: %w", err)
	}
	d.pool = pool

	allLayers := module.NewLayerSet(module.LayerLink, module.LayerLinkPost, module.LayerIP, module.LayerService)
	for networkType := range d.cfg.ModuleHosts {
		m := remote.NewModule(networkType, networkType, allLayers, pool)
		if err := d.registry.Register(networkType, m); err != nil {
			return fmt.Errorf("daemon: registering remote module: %w", err)
		}
	}
	return nil
}

// newIAP is request.Deps.NewIAP: it resolves networkType's module chain
// and wires a fresh *iap.IAP against every collaborator the state machine
// needs. d.scheduler and d.companion are read, not closed over by value,
// so this may run before either is assigned during New (it never does in
// practice: the scheduler only calls NewIAP from Submit, which nothing
// can call before New returns).
func (d *Daemon) newIAP(name string, id identity.Identity, networkType string) (*iap.IAP, error) {
	chain, err := d.registry.ChainFor(networkType)
	if err != nil {
		return nil, err
	}
	return iap.New(name, id, networkType, chain, iap.Deps{
		Scripts:           d.runner,
		ScriptPath:        d.resolveScriptPath,
		Idle:              d.idle,
		Bus:               d.bus,
		Post:              d.loop.Post,
		AnyOtherConnected: d.anyOtherConnected,
		CheckCollision:    d.checkCollision,
		SaveTimeout:       d.cfg.IdleTimeoutFor("__save_dialog__"),
		CancelSaveDialog: func(self *iap.IAP) {
			d.companion.CancelSaveDialog(self)
		},
	}), nil
}

func (d *Daemon) anyOtherConnected(self *iap.IAP) bool {
	other := false
	d.scheduler.ForEachIAP(func(_ string, x *iap.IAP) {
		if x != self && x.State == iap.Connected {
			other = true
		}
	})
	return other
}

func (d *Daemon) checkCollision(self *iap.IAP, newID identity.Identity) bool {
	collide := false
	d.scheduler.ForEachIAP(func(_ string, x *iap.IAP) {
		if x != self && x.Identity.Equal(newID) {
			collide = true
		}
	})
	return collide
}

// resolveScriptPath looks up the phase script configured for a's settings
// entry, e.g. key "pre_up_script". An empty result means no script runs
// for this phase, which spec.md §4.2 permits for any phase.
func (d *Daemon) resolveScriptPath(phase script.Phase, a *iap.IAP) (string, []string) {
	path := d.store.GetString(a.Name, phase.String()+"_script")
	if path == "" {
		return "", nil
	}
	return path, nil
}

// RegisterModule adds an in-process module to the registry under
// networkType, for callers (and tests) that want a module living in this
// process rather than behind a remote.Pool host — the registry does not
// distinguish the two (spec.md §6).
func (d *Daemon) RegisterModule(networkType string, m module.Module) error {
	return d.registry.Register(networkType, m)
}

// Dispatcher exposes the Client API dispatch table for an alternate
// transport binding to register against.
func (d *Daemon) Dispatcher() *clientapi.Dispatcher { return d.dispatcher }

// Companion exposes the UI Companion for an out-of-process UI transport
// to deliver disconnect/save/retry signals to.
func (d *Daemon) Companion() *ui.Companion { return d.companion }

// Run starts the client API HTTP adapter and the event loop, blocking
// until ctx is canceled or Shutdown finishes draining.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.httpServer.Start(); err != nil {
		return fmt.Errorf("daemon: starting client API server: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.stopLoop = cancel
	d.loop.Run(loopCtx)
	return nil
}

// liveIAPCount posts a count query onto the event loop and waits for the
// answer, so callers outside the loop goroutine can observe scheduler
// state without touching it directly.
func (d *Daemon) liveIAPCount() int {
	result := make(chan int, 1)
	d.loop.Post(func() {
		count := 0
		d.scheduler.ForEachIAP(func(string, *iap.IAP) { count++ })
		result <- count
	})
	return <-result
}

// Shutdown answers the icd_context_destroy open question (SPEC_FULL.md
// §9, "at minimum drain the request list and await DISCONNECTED before
// exit"): it disconnects every live IAP, then polls until none remain or
// drainTimeout elapses, whichever comes first, before stopping the HTTP
// adapter and releasing the remaining collaborators.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.loop.Post(func() {
		d.scheduler.ForEachIAP(func(_ string, a *iap.IAP) {
			if !a.State.IsTerminal() {
				a.Disconnect("")
			}
		})
	})

	deadline := time.After(d.drainTimeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

drain:
	for d.liveIAPCount() > 0 {
		select {
		case <-deadline:
			slog.Warn("daemon: shutdown drain timed out with IAPs still live")
			break drain
		case <-ctx.Done():
			break drain
		case <-ticker.C:
		}
	}

	if d.pool != nil {
		d.pool.Close()
	}
	d.store.Close()
	err := d.httpServer.Stop()
	if d.stopLoop != nil {
		d.stopLoop()
	}
	return err
}
