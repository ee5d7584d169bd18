// Package script implements the Script Runner Facade (C2): it spawns the
// pre_up/post_up/pre_down/post_down scripts the IAP state machine invokes
// at each bring-up/tear-down boundary, and reports their exit status
// asynchronously. The script interpreter itself — what a script file may
// contain — is out of scope; this package only spawns whatever executable
// path the caller resolves and watches it to completion.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sebas/icd/internal/module"
)

// Phase names which boundary a script runs at. The runner uses it only for
// logging; the daemon also derives each phase's script-path settings key
// from its String form.
type Phase int

const (
	PhasePreUp Phase = iota
	PhasePostUp
	PhasePreDown
	PhasePostDown
	// PhaseIPRestart, PhaseLinkPreRestart, and PhaseLinkRestart back the
	// IAP state machine's three RESTART_SCRIPTS states (spec.md §4.7):
	// scripts that run once tear-down has walked back to the restarting
	// layer, before bring-up resumes from that layer.
	PhaseIPRestart
	PhaseLinkPreRestart
	PhaseLinkRestart
)

func (p Phase) String() string {
	switch p {
	case PhasePreUp:
		return "pre_up"
	case PhasePostUp:
		return "post_up"
	case PhasePreDown:
		return "pre_down"
	case PhasePostDown:
		return "post_down"
	case PhaseIPRestart:
		return "ip_restart"
	case PhaseLinkPreRestart:
		return "link_pre_restart"
	case PhaseLinkRestart:
		return "link_restart"
	default:
		return "unknown"
	}
}

// ExitCallback fires exactly once per Run, whether the script exited
// normally, failed, was cancelled, or timed out. exitValue is -1 on
// timeout per spec.md §4.2.
type ExitCallback func(pid int, exitValue int, userData any)

// MaxConcurrentScripts bounds how many scripts may run at once, the same
// guard the teacher applies to concurrent session migrations.
const MaxConcurrentScripts = 8

// process tracks one in-flight script invocation.
type process struct {
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	fired    atomic.Bool
	userData any
	cb       ExitCallback
}

// Runner spawns and tracks script processes, keyed by process id (the
// token stored in script_pids per spec.md).
type Runner struct {
	mu      sync.Mutex
	procs   map[int]*process
	sem     *semaphore.Weighted
	Timeout time.Duration
}

// NewRunner creates a Runner whose scripts are killed after timeout if
// they have not exited on their own.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{
		procs:   make(map[int]*process),
		sem:     semaphore.NewWeighted(MaxConcurrentScripts),
		Timeout: timeout,
	}
}

// Run spawns path with args and env, and reports completion via cb. The
// returned pid is the token callers store in script_pids to correlate a
// later Cancel with this invocation.
func (r *Runner) Run(ctx context.Context, phase Phase, path string, args []string, env module.EnvBag, userData any, cb ExitCallback) (int, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("script: acquire slot for %s %s: %w", phase, path, err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), r.effectiveTimeout())
	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Env = envStrings(env)

	if err := cmd.Start(); err != nil {
		cancel()
		r.sem.Release(1)
		return 0, fmt.Errorf("script: start %s %s: %w", phase, path, err)
	}

	p := &process{cmd: cmd, cancel: cancel, userData: userData, cb: cb}
	pid := cmd.Process.Pid

	r.mu.Lock()
	r.procs[pid] = p
	r.mu.Unlock()

	slog.Info("script: started", "phase", phase.String(), "path", path, "pid", pid)

	go r.wait(phase, pid, p, runCtx)

	return pid, nil
}

func (r *Runner) effectiveTimeout() time.Duration {
	if r.Timeout <= 0 {
		return 30 * time.Second
	}
	return r.Timeout
}

func (r *Runner) wait(phase Phase, pid int, p *process, runCtx context.Context) {
	defer r.sem.Release(1)
	defer p.cancel()

	err := p.cmd.Wait()

	r.mu.Lock()
	delete(r.procs, pid)
	r.mu.Unlock()

	exitValue := 0
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		exitValue = -1
		slog.Warn("script: timed out", "phase", phase.String(), "pid", pid)
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitValue = exitErr.ExitCode()
		} else {
			exitValue = -1
		}
		slog.Warn("script: exited with error", "phase", phase.String(), "pid", pid, "error", err)
	default:
		slog.Debug("script: exited", "phase", phase.String(), "pid", pid)
	}

	r.fire(p, pid, exitValue)
}

// fire invokes p's callback exactly once, guarding against a racing
// Cancel() also trying to report completion.
func (r *Runner) fire(p *process, pid, exitValue int) {
	if p.fired.CompareAndSwap(false, true) {
		p.cb(pid, exitValue, p.userData)
	}
}

// Cancel requests early termination of pid. The exit callback still fires
// exactly once, reported by wait() once the killed process's Wait()
// returns — Cancel itself never invokes the callback directly, so there is
// never a race between this call and a natural exit.
func (r *Runner) Cancel(pid int) error {
	r.mu.Lock()
	p, ok := r.procs[pid]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("script: no running process with pid %d", pid)
	}
	if p.cmd.Process == nil {
		return fmt.Errorf("script: process %d not started", pid)
	}
	return p.cmd.Process.Kill()
}

func envStrings(env module.EnvBag) []string {
	out := append([]string{}, os.Environ()...)
	for _, v := range env {
		out = append(out, v.Name+"="+v.Value)
	}
	return out
}
