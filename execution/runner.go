package execution

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const truncatedMarker = "\n[output truncated]\n"

// CommandRunner starts one process and collects its output.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string) (stdout, stderr string, err error)
}

// ProcessTracker is told about every process the runner starts.
type ProcessTracker interface {
	Track(pid int)
	Untrack(pid int)
}

// ProcessRunner runs commands on the host. Cancelling ctx kills the whole
// process group, so programs that fork do not outlive their timeout.
type ProcessRunner struct {
	log       *slog.Logger
	maxOutput int
	tracker   ProcessTracker
}

func NewProcessRunner(log *slog.Logger, maxOutput int, tracker ProcessTracker) *ProcessRunner {
	return &ProcessRunner{log: log, maxOutput: maxOutput, tracker: tracker}
}

func (r *ProcessRunner) Run(ctx context.Context, dir string, argv []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	stdout := newCappedBuffer(r.maxOutput)
	stderr := newCappedBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setPlatformSpecificAttrs(cmd)
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return "", "", err
	}
	pid := cmd.Process.Pid
	if r.tracker != nil {
		r.tracker.Track(pid)
		defer r.tracker.Untrack(pid)
	}
	r.log.Debug("Process started", "pid", pid, "cmd", cmd.String())

	err := cmd.Wait()
	return stdout.String(), stderr.String(), err
}

// cappedBuffer keeps the first limit bytes and silently discards the rest,
// so a runaway program cannot exhaust memory.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + truncatedMarker
	}
	return b.buf.String()
}
