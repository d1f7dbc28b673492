// Package rebuild runs build passes in response to change triggers, one at a time.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/euforicio/sitegen/internal/builder"
	"github.com/euforicio/sitegen/internal/metrics"
)

// Builder performs one full build pass.
type Builder interface {
	Build(ctx context.Context, contentRoot, outputRoot string) (builder.Manifest, error)
}

// Policy decides what a failed triggered rebuild does to the worker.
type Policy int

const (
	// PolicyKeepServing logs the failure and waits for the next trigger. The output
	// tree keeps whatever the failed pass left behind.
	PolicyKeepServing Policy = iota
	// PolicyFailFast stops the worker and returns the build error from Run.
	PolicyFailFast
)

func (p Policy) String() string {
	switch p {
	case PolicyKeepServing:
		return "keep-serving"
	case PolicyFailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// State is the worker's position in the Idle/Building cycle.
type State int32

// Worker states.
const (
	StateIdle State = iota
	StateBuilding
)

func (s State) String() string {
	if s == StateBuilding {
		return "building"
	}
	return "idle"
}

// Status summarizes the worker's history.
type Status struct {
	State       string    `json:"state"`
	Policy      string    `json:"policy"`
	Builds      uint64    `json:"builds"`
	Failures    uint64    `json:"failures"`
	LastBuildID string    `json:"lastBuildId,omitempty"`
	LastPages   int       `json:"lastPages"`
	LastSuccess time.Time `json:"lastSuccess,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
}

// Options configures a Worker.
type Options struct {
	Policy  Policy
	Metrics *metrics.Recorder
}

// Worker serializes build passes for one content/output root pair.
type Worker struct {
	build   Builder
	logger  *slog.Logger
	metrics *metrics.Recorder
	content string
	output  string
	policy  Policy
	state   atomic.Int32

	mu     sync.Mutex
	status Status
}

// New constructs a Worker. If logger is nil, the default slog logger is used.
func New(b Builder, contentRoot, outputRoot string, logger *slog.Logger, opts Options) (*Worker, error) {
	if b == nil {
		return nil, errors.New("builder must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		build:   b,
		logger:  logger.With("component", "rebuild"),
		metrics: opts.Metrics,
		content: contentRoot,
		output:  outputRoot,
		policy:  opts.Policy,
	}, nil
}

// State reports whether a build is in flight.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Status returns a snapshot of the worker's counters.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.status
	st.State = w.State().String()
	st.Policy = w.policy.String()
	return st
}

// BuildNow runs one build pass on the calling goroutine and records its outcome.
func (w *Worker) BuildNow(ctx context.Context) (builder.Manifest, error) {
	w.state.Store(int32(StateBuilding))
	defer w.state.Store(int32(StateIdle))
	w.metrics.BuildStarted()

	buildID := uuid.NewString()
	started := time.Now()
	manifest, err := w.build.Build(ctx, w.content, w.output)
	elapsed := time.Since(started)

	w.mu.Lock()
	w.status.Builds++
	w.status.LastBuildID = buildID
	if err != nil {
		w.status.Failures++
		w.status.LastError = err.Error()
	} else {
		w.status.LastError = ""
		w.status.LastPages = len(manifest)
		w.status.LastSuccess = time.Now()
	}
	w.mu.Unlock()

	if err != nil {
		w.metrics.BuildFinished(metrics.OutcomeFailed, elapsed, 0)
		w.logger.Warn("build failed", slog.String("build_id", buildID), slog.Duration("elapsed", elapsed))
		return manifest, err
	}
	w.metrics.BuildFinished(metrics.OutcomeSuccess, elapsed, len(manifest))
	w.logger.Info("build finished",
		slog.String("build_id", buildID),
		slog.Int("pages", len(manifest)),
		slog.Duration("elapsed", elapsed),
	)
	return manifest, nil
}

// Run consumes triggers until ctx is done or triggers is closed. Triggers that
// arrive while a pass is running wait in the channel, so a burst is followed by at
// least one pass that sees its final state. Passes are not cancelled by ctx once
// started. Under PolicyFailFast the first failed pass ends Run with its error.
func (w *Worker) Run(ctx context.Context, triggers <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-triggers:
			if !ok {
				return nil
			}
			w.metrics.TriggerReceived()
			w.logger.Info("change detected; rebuilding site")

			if _, err := w.BuildNow(context.WithoutCancel(ctx)); err != nil {
				if w.policy == PolicyFailFast {
					return fmt.Errorf("rebuild: %w", err)
				}
				w.logger.Error("rebuild failed; waiting for the next change", slog.Any("err", err))
			}
		}
	}
}
