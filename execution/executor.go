package execution

import (
	"collab-lab/contract"
	"collab-lab/domain"
	cerrors "collab-lab/errors"
	"collab-lab/observability"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "collab-lab/execution"

type Config struct {
	Timeout        time.Duration
	MaxPerRoom     int
	MaxOutputBytes int
}

// Executor implements contract.IExecutor. Requests never share a
// workspace, so concurrent executions in one room cannot clobber each
// other's sources or artifacts.
type Executor struct {
	log        *slog.Logger
	storage    contract.IRoomStorage
	toolchains Toolchains
	runner     CommandRunner
	resolver   ArtifactResolver
	cfg        Config
	metrics    *observability.Metrics
	tracer     trace.Tracer

	mu       sync.Mutex
	inflight map[domain.RoomID]int
	wg       sync.WaitGroup
}

func NewExecutor(log *slog.Logger, storage contract.IRoomStorage, toolchains Toolchains,
	runner CommandRunner, resolver ArtifactResolver, cfg Config, metrics *observability.Metrics) *Executor {
	return &Executor{
		log:        log,
		storage:    storage,
		toolchains: toolchains,
		runner:     runner,
		resolver:   resolver,
		cfg:        cfg,
		metrics:    metrics,
		tracer:     otel.Tracer(tracerName),
		inflight:   make(map[domain.RoomID]int),
	}
}

// Submit returns immediately. deliver is called exactly once, from another
// goroutine unless the request is refused upfront. The workspace is removed
// only after deliver returns.
func (e *Executor) Submit(ctx context.Context, req domain.ExecutionRequest, deliver func(domain.ExecutionResult)) {
	toolchain, ok := e.toolchains[req.Language]
	if !ok {
		e.metrics.Executions.WithLabelValues(string(req.Language), observability.OutcomeRuntimeError).Inc()
		deliver(domain.ExecutionResult{
			Request: req,
			Stage:   domain.StageReceived,
			Err:     fmt.Errorf("%w: %s", cerrors.ErrUnsupportedLanguage, req.Language),
		})
		return
	}
	if !e.acquire(req.Room) {
		e.metrics.Executions.WithLabelValues(string(req.Language), observability.OutcomeThrottled).Inc()
		deliver(domain.ExecutionResult{Request: req, Stage: domain.StageReceived, Err: cerrors.ErrTooManyExecutions})
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(req.Room)
		res, workspace := e.execute(ctx, toolchain, req)
		deliver(res)
		e.cleanup(workspace)
	}()
}

// Wait blocks until every accepted request has been delivered.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) acquire(roomID domain.RoomID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.MaxPerRoom > 0 && e.inflight[roomID] >= e.cfg.MaxPerRoom {
		return false
	}
	e.inflight[roomID]++
	return true
}

func (e *Executor) release(roomID domain.RoomID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight[roomID]--
	if e.inflight[roomID] <= 0 {
		delete(e.inflight, roomID)
	}
}

func (e *Executor) execute(ctx context.Context, toolchain Toolchain, req domain.ExecutionRequest) (domain.ExecutionResult, string) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "execution",
		trace.WithAttributes(
			attribute.String("room", string(req.Room)),
			attribute.String("language", string(req.Language)),
			attribute.Int("code.bytes", len(req.Code)),
		))
	defer span.End()

	res, workspace := e.pipeline(ctx, toolchain, req)
	res.Duration = time.Since(start)

	outcome := outcomeOf(res)
	e.metrics.Executions.WithLabelValues(string(req.Language), outcome).Inc()
	e.metrics.ExecutionDuration.WithLabelValues(string(req.Language)).Observe(res.Duration.Seconds())
	span.SetAttributes(attribute.String("outcome", outcome), attribute.String("stage", res.Stage.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	e.log.Info("Execution finished",
		"room", req.Room, "lang", req.Language, "outcome", outcome, "duration", res.Duration)
	return res, workspace
}

// pipeline returns the workspace it created, "" when none was, so the
// caller can remove it once the result is delivered.
func (e *Executor) pipeline(ctx context.Context, toolchain Toolchain, req domain.ExecutionRequest) (domain.ExecutionResult, string) {
	res := domain.ExecutionResult{Request: req, Stage: domain.StageReceived}

	workspace, err := e.storage.NewWorkspace(req.Room)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", cerrors.ErrExecutionFailed, err)
		return res, ""
	}

	source := filepath.Join(workspace, toolchain.SourceFileFor(req.Code))
	if err := os.WriteFile(source, []byte(req.Code), 0o644); err != nil {
		res.Err = fmt.Errorf("%w: %v", cerrors.ErrExecutionFailed, err)
		return res, workspace
	}
	res.Stage = domain.StageWritten

	vars := map[string]string{
		SourcePlaceholder:   source,
		WorkdirPlaceholder:  workspace,
		ArtifactPlaceholder: filepath.Join(workspace, toolchain.Artifact),
	}

	if toolchain.Compiled() {
		stdout, stderr, err := e.step(ctx, "compile", workspace, expand(toolchain.Compile, vars))
		if toolchain.ResolvesClass {
			vars[ClassPlaceholder], err = e.resolveClass(stderr, workspace, err)
			stderr = StripVerbose(stderr)
		}
		if err != nil {
			res.Stdout, res.Stderr = stdout, stderr
			res.Err = wrapStepError(cerrors.ErrCompilationFailed, err)
			return res, workspace
		}
		res.Stage = domain.StageCompiled
	}

	stdout, stderr, err := e.step(ctx, "run", workspace, expand(toolchain.Run, vars))
	res.Stdout, res.Stderr = stdout, stderr
	res.Stage = domain.StageRun
	if err != nil {
		res.Err = wrapStepError(cerrors.ErrExecutionFailed, err)
		return res, workspace
	}
	res.Stage = domain.StageDelivered
	return res, workspace
}

func (e *Executor) resolveClass(stderr, workspace string, compileErr error) (string, error) {
	if compileErr != nil {
		return "", compileErr
	}
	return e.resolver.ResolveClass(stderr, workspace)
}

// step runs one command under its own timeout.
func (e *Executor) step(ctx context.Context, name, dir string, argv []string) (string, string, error) {
	ctx, span := e.tracer.Start(ctx, name)
	defer span.End()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	stdout, stderr, err := e.runner.Run(ctx, dir, argv)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = cerrors.ErrExecutionTimeout
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return stdout, stderr, err
}

func (e *Executor) cleanup(workspace string) {
	if workspace == "" {
		return
	}
	if err := os.RemoveAll(workspace); err != nil {
		e.log.Warn("Could not remove execution workspace", "workspace", workspace, "error", err)
	}
}

func wrapStepError(kind, err error) error {
	if errors.Is(err, cerrors.ErrExecutionTimeout) || errors.Is(err, cerrors.ErrArtifactNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, strings.TrimSpace(err.Error()))
}

func outcomeOf(res domain.ExecutionResult) string {
	switch {
	case res.Err == nil:
		return observability.OutcomeSuccess
	case errors.Is(res.Err, cerrors.ErrExecutionTimeout):
		return observability.OutcomeTimeout
	case errors.Is(res.Err, cerrors.ErrCompilationFailed), errors.Is(res.Err, cerrors.ErrArtifactNotFound):
		return observability.OutcomeCompileError
	default:
		return observability.OutcomeRuntimeError
	}
}
