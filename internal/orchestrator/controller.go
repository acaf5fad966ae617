package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/auth"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/chunk"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/logging"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/progress"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/telemetry"
)

// Response statuses.
const (
	StatusSuccess  = "success"
	StatusComplete = "complete"
)

const (
	defaultChunkSize       = 5
	defaultExecutionBudget = 300 * time.Second
)

// Executor runs the builder over one planned slice.
type Executor interface {
	Execute(ctx context.Context, targets []crawl.Target) error
}

// Continuer hands the next chunk to a new invocation without blocking.
type Continuer interface {
	Dispatch(ctx context.Context, req dispatcher.Request) error
}

// Config holds the controller's read-only settings.
type Config struct {
	// DefaultChunkSize applies when the request carries no size.
	DefaultChunkSize int
	// ExecutionBudget is advisory: a slower chunk is logged and counted but
	// never aborted.
	ExecutionBudget time.Duration
	// AutoContinue gates self-continuation for the whole deployment. When
	// false, auto=true requests behave as auto=false.
	AutoContinue bool
}

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Guard     auth.Guard
	Lister    crawl.TargetLister
	Executor  Executor
	Continuer Continuer
	Clock     crawl.Clock
	IDs       crawl.IDGenerator
	Emitter   progress.Emitter
}

// Invocation is one inbound trigger.
type Invocation struct {
	AuthHeader string
	Query      url.Values
	// BaseURL is where a continuation should be sent. Empty means no address
	// could be resolved; a needed hand-off is then reported as failed.
	BaseURL string
	// RequestID correlates log lines; it is forwarded to the continuation so
	// every chunk of a chain logs under the same id.
	RequestID string
}

// Result is the response body of a successful invocation.
type Result struct {
	Status         string  `json:"status"`
	Message        string  `json:"message"`
	Chunk          int     `json:"chunk"`
	ChunksTotal    int     `json:"chunks_total"`
	Processed      int     `json:"processed"`
	Total          int     `json:"total"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	NextChunk      *int    `json:"next_chunk"`
	AutoContinuing bool    `json:"auto_continuing"`
}

// Controller executes invocations. It is safe for concurrent use; concurrent
// invocations of the same chunk are neither prevented nor deduplicated.
type Controller struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
}

// New builds a Controller.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Controller, error) {
	if deps.Lister == nil {
		return nil, errors.New("target lister is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard{}
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = defaultChunkSize
	}
	if cfg.ExecutionBudget <= 0 {
		cfg.ExecutionBudget = defaultExecutionBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, deps: deps, logger: logger}, nil
}

// Invoke runs the invocation state machine. Errors are ErrUnauthorized,
// ErrBadRequest (wrapped) or *ExecutionError; continuation failures are only
// logged and never change the result.
//
// Listing and execution run on a context detached from ctx's cancellation:
// the caller of a continued chunk is the previous chunk's dispatcher, which
// hangs up after its short timeout while this chunk is still being built.
func (c *Controller) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	base := c.logger
	if inv.RequestID != "" {
		base = base.With(zap.String("request_id", inv.RequestID))
	}
	invocationID, err := c.deps.IDs.NewID()
	if err != nil {
		base.Warn("generate invocation id", zap.Error(err))
	}
	eventID := progress.ParseID(invocationID)
	logger := base.With(zap.String("invocation_id", invocationID))

	if c.deps.Guard.Open() {
		logger.Warn("CRON secret is not set; anyone can trigger the crawl")
	}
	if !c.deps.Guard.Authorize(inv.AuthHeader) {
		logger.Warn("rejected crawl trigger with invalid credentials")
		telemetry.ObserveInvocation(telemetry.OutcomeUnauthorized)
		return Result{}, ErrUnauthorized
	}

	params, err := ParseParams(inv.Query, c.cfg.DefaultChunkSize)
	if err != nil {
		logger.Info("rejected crawl parameters", zap.Error(err))
		telemetry.ObserveInvocation(telemetry.OutcomeBadRequest)
		return Result{}, err
	}
	logger = logging.WithInvocation(base, invocationID, params.Chunk, params.Size)
	work := context.WithoutCancel(ctx)

	listStart := c.deps.Clock.Now()
	targets, err := c.deps.Lister.ListTargets(work)
	if err != nil {
		elapsed := c.deps.Clock.Now().Sub(listStart)
		logger.Error("list crawl targets failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		telemetry.ObserveInvocation(telemetry.OutcomeError)
		return Result{}, &ExecutionError{Err: fmt.Errorf("list targets: %w", err), Elapsed: elapsed}
	}

	plan, err := chunk.New(params.Chunk, params.Size, len(targets))
	if err != nil {
		telemetry.ObserveInvocation(telemetry.OutcomeBadRequest)
		return Result{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	if plan.Empty() {
		logger.Info("all targets already processed", zap.Int("total", plan.TotalItems))
		c.emit(eventID, progress.StageChainComplete, plan, 0, "")
		telemetry.ObserveInvocation(telemetry.OutcomeComplete)
		return Result{
			Status:      StatusComplete,
			Message:     "All targets already processed for these parameters.",
			Chunk:       plan.Index,
			ChunksTotal: plan.TotalChunks,
			Total:       plan.TotalItems,
		}, nil
	}

	logger.Info(fmt.Sprintf("Processing chunk %d (targets %d-%d of %d)", plan.Index, plan.Start, plan.End-1, plan.TotalItems),
		zap.Int("start", plan.Start),
		zap.Int("end", plan.End),
		zap.Int("total", plan.TotalItems),
		zap.Int("chunks_total", plan.TotalChunks),
	)
	c.emit(eventID, progress.StageChunkStart, plan, 0, "")

	start := c.deps.Clock.Now()
	execErr := c.deps.Executor.Execute(work, chunk.Select(targets, plan))
	elapsed := c.deps.Clock.Now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	c.checkBudget(logger, elapsed)

	if execErr != nil {
		logger.Error("chunk execution failed", zap.Error(execErr), zap.Duration("elapsed", elapsed))
		c.emit(eventID, progress.StageChunkError, plan, elapsed, execErr.Error())
		telemetry.ObserveInvocation(telemetry.OutcomeError)
		return Result{}, &ExecutionError{Err: execErr, Elapsed: elapsed}
	}
	telemetry.ObserveTargetsProcessed(plan.Len())
	c.emit(eventID, progress.StageChunkDone, plan, elapsed, "")

	result := Result{
		Status:         StatusSuccess,
		Message:        fmt.Sprintf("Crawled targets %d to %d", plan.Start, plan.End-1),
		Chunk:          plan.Index,
		ChunksTotal:    plan.TotalChunks,
		Processed:      plan.Len(),
		Total:          plan.TotalItems,
		ElapsedSeconds: roundTenth(elapsed.Seconds()),
	}
	next, hasMore := plan.Next()
	if !hasMore {
		result.Status = StatusComplete
		c.emit(eventID, progress.StageChainComplete, plan, 0, "")
		telemetry.ObserveInvocation(telemetry.OutcomeComplete)
		logger.Info("crawl chain complete", zap.Duration("elapsed", elapsed))
		return result, nil
	}

	result.NextChunk = &next
	result.AutoContinuing = params.Auto && c.cfg.AutoContinue
	if result.AutoContinuing {
		c.continueChain(ctx, logger, eventID, inv, next, params.Size)
	}
	telemetry.ObserveInvocation(telemetry.OutcomeSuccess)
	logger.Info("chunk complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("next_chunk", next),
		zap.Bool("auto_continuing", result.AutoContinuing),
	)
	return result, nil
}

func (c *Controller) continueChain(ctx context.Context, logger *zap.Logger, eventID [16]byte, inv Invocation, next, size int) {
	var err error
	switch {
	case c.deps.Continuer == nil:
		err = errors.New("no continuation dispatcher configured")
	case inv.BaseURL == "":
		err = dispatcher.ErrNoBaseURL
	default:
		err = c.deps.Continuer.Dispatch(ctx, dispatcher.Request{
			BaseURL:       inv.BaseURL,
			NextChunk:     next,
			Size:          size,
			Authorization: inv.AuthHeader,
			RequestID:     inv.RequestID,
			InvocationID:  eventID,
		})
	}
	if err == nil {
		return
	}
	logger.Error("continuation dispatch failed", zap.Int("next_chunk", next), zap.Error(err))
	c.deps.Emitter.Emit(progress.Event{
		InvocationID: eventID,
		TS:           c.deps.Clock.Now(),
		Stage:        progress.StageDispatchFailed,
		Chunk:        next,
		Size:         size,
		Note:         err.Error(),
	})
}

func (c *Controller) checkBudget(logger *zap.Logger, elapsed time.Duration) {
	if elapsed <= c.cfg.ExecutionBudget {
		return
	}
	telemetry.ObserveBudgetOverrun()
	logger.Warn("chunk exceeded execution budget",
		zap.Duration("elapsed", elapsed),
		zap.Duration("budget", c.cfg.ExecutionBudget),
	)
}

func (c *Controller) emit(id [16]byte, stage progress.Stage, plan chunk.Plan, dur time.Duration, note string) {
	c.deps.Emitter.Emit(progress.Event{
		InvocationID: id,
		TS:           c.deps.Clock.Now(),
		Stage:        stage,
		Chunk:        plan.Index,
		Size:         plan.Size,
		Start:        min(plan.Start, plan.TotalItems),
		End:          plan.End,
		Total:        plan.TotalItems,
		Dur:          dur,
		Note:         note,
	})
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
