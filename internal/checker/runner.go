// Package checker runs the per-task CHECK/PUT/GET checker binaries as
// subprocesses, isolating their blocking I/O behind a bounded worker pool
// (CHECKERS threads), two-phase timeout (SIGTERM then SIGKILL), and a
// circuit breaker keyed per task so a single wedged checker cannot starve
// the whole pool.
package checker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/adarena/backend/internal/circuitbreaker"
	"github.com/adarena/backend/internal/domain"
)

const (
	terminateGrace = 3 * time.Second
	outputLimit    = 1024
)

// Team and Task are the minimal fields the checker invocation needs; kept
// narrow so this package doesn't import internal/store.
type Team struct {
	ID int
	IP string
}

type TaskSpec struct {
	ID             int
	Checker        string
	EnvPath        string
	CheckerTimeout time.Duration
}

// FlagArgs carries the PUT/GET-only flag arguments.
type FlagArgs struct {
	PrivateFlagData string
	Flag            string
	VulnNumber      int
}

// Pool bounds concurrent checker subprocess launches to CHECKERS threads
// and guards each task's launch reliability with its own circuit breaker.
type Pool struct {
	sem      *semaphore.Weighted
	breakers *circuitbreaker.CheckerBreakers
}

// NewPool builds a bounded pool. size should come from config.Worker.Checkers.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(size)),
		breakers: circuitbreaker.NewCheckerBreakers(),
	}
}

// Run acquires a pool slot, then invokes the checker under that task's
// circuit breaker. Blocks until a slot is free or ctx is cancelled.
func (p *Pool) Run(ctx context.Context, action domain.Action, team Team, task TaskSpec, flag *FlagArgs) (domain.CheckerVerdict, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return domain.CheckerVerdict{}, fmt.Errorf("checker pool: acquire: %w", err)
	}
	defer p.sem.Release(1)

	breaker := p.breakers.For(task.Checker)
	result, err := breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		v := runGenericCommand(ctx, action, team, task, flag)
		if v.Status == domain.StatusCheckFailed {
			return v, fmt.Errorf("checker exited CHECK_FAILED")
		}
		return v, nil
	})
	if err != nil {
		if verdict, ok := result.(domain.CheckerVerdict); ok {
			return verdict, nil
		}
		slog.Warn("checker: circuit breaker blocked launch", "task", task.Checker, "action", action, "error", err)
		return domain.CheckerVerdict{
			Status:         domain.StatusCheckFailed,
			Action:         action,
			PublicMessage:  "Checker unavailable",
			PrivateMessage: err.Error(),
		}, nil
	}
	return result.(domain.CheckerVerdict), nil
}

func checkerCommand(action domain.Action, team Team, task TaskSpec, flag *FlagArgs) []string {
	switch action {
	case domain.ActionCheck:
		return []string{task.Checker, "check", team.IP}
	case domain.ActionPut:
		return []string{task.Checker, "put", team.IP, flag.PrivateFlagData, flag.Flag, strconv.Itoa(flag.VulnNumber)}
	case domain.ActionGet:
		return []string{task.Checker, "get", team.IP, flag.PrivateFlagData, flag.Flag, strconv.Itoa(flag.VulnNumber)}
	default:
		return nil
	}
}

// runGenericCommand launches the checker subprocess with a patched PATH
// (task.EnvPath prepended), enforces task.CheckerTimeout with a two-phase
// SIGTERM-then-SIGKILL shutdown, and maps the result to a CheckerVerdict.
func runGenericCommand(ctx context.Context, action domain.Action, team Team, task TaskSpec, flag *FlagArgs) domain.CheckerVerdict {
	args := checkerCommand(action, team, task, flag)
	cmdStr := strings.Join(args, " ")

	runCtx, cancel := context.WithTimeout(ctx, task.CheckerTimeout)
	defer cancel()

	cmd := exec.Command(args[0], args[1:]...)
	if task.EnvPath != "" {
		cmd.Env = patchedEnviron(task.EnvPath)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return domain.CheckerVerdict{
			Status: domain.StatusCheckFailed, Action: action, Command: cmdStr,
			PublicMessage:  "Checker failed to start",
			PrivateMessage: err.Error(),
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return verdictFromResult(action, cmdStr, err, cmd, stdout.Bytes(), stderr.Bytes(), team, task)
	case <-runCtx.Done():
		return killGracefully(cmd, done, action, cmdStr, team, task)
	}
}

// killGracefully sends SIGTERM and waits terminateGrace before SIGKILL,
// matching run_command_gracefully's terminate-then-kill two-phase shutdown.
func killGracefully(cmd *exec.Cmd, done chan error, action domain.Action, cmdStr string, team Team, task TaskSpec) domain.CheckerVerdict {
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(terminateGrace):
		_ = cmd.Process.Kill()
		<-done
	}

	slog.Warn("checker: timeout", "action", action, "team_id", team.ID, "task_id", task.ID)
	return domain.CheckerVerdict{
		Status: domain.StatusDown, Action: action, Command: cmdStr,
		PublicMessage:  "Checker timed out",
		PrivateMessage: fmt.Sprintf("%s timeout", action),
	}
}

func verdictFromResult(action domain.Action, cmdStr string, waitErr error, cmd *exec.Cmd, stdout, stderr []byte, team Team, task TaskSpec) domain.CheckerVerdict {
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return domain.CheckerVerdict{
				Status: domain.StatusCheckFailed, Action: action, Command: cmdStr,
				PublicMessage:  "Check failed",
				PrivateMessage: waitErr.Error(),
			}
		}
	}

	status := domain.StatusFromExitCode(exitCode)
	public := truncate(stdout)
	private := truncate(stderr)

	if status == domain.StatusCheckFailed {
		slog.Warn("checker: action failed", "action", action, "team_id", team.ID, "task_id", task.ID, "exit_code", exitCode, "stdout", public, "stderr", private)
	}

	return domain.CheckerVerdict{
		Status: status, Action: action, Command: cmdStr,
		PublicMessage:  public,
		PrivateMessage: private,
	}
}

func truncate(b []byte) string {
	if len(b) > outputLimit {
		b = b[:outputLimit]
	}
	return strings.TrimSpace(string(b))
}
