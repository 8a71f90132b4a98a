package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/shop-harvester/internal/auth"
	"github.com/jonathan/shop-harvester/internal/checkpoint"
	"github.com/jonathan/shop-harvester/internal/product"
)

// State is the dispatcher's lifecycle state for one run.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateDispatching
	StateCompleted
	StateInterrupted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateDispatching:
		return "dispatching"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Publisher uploads the committed output file. Publish failures are logged
// and never fail the run.
type Publisher interface {
	Publish(ctx context.Context, path string) error
}

// Dispatcher fans identifiers out to the fetch pipeline with a fixed-size
// worker pool, feeds successes into the checkpoint store, and observes the
// cooperative cancellation flag.
type Dispatcher struct {
	creds       *auth.Credentials
	pipeline    *product.Pipeline
	store       *checkpoint.Store
	publisher   Publisher // nil when publishing is not configured
	concurrency int
	run         *RunState
	log         *zap.Logger
}

// NewDispatcher wires a dispatcher. concurrency is the sole concurrency
// control knob.
func NewDispatcher(creds *auth.Credentials, pipeline *product.Pipeline, store *checkpoint.Store, publisher Publisher, concurrency int, run *RunState, log *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		creds:       creds,
		pipeline:    pipeline,
		store:       store,
		publisher:   publisher,
		concurrency: concurrency,
		run:         run,
		log:         log,
	}
}

// Run executes one harvest over the given identifier list and returns the
// terminal state. The returned error is set only for StateFailed.
func (d *Dispatcher) Run(ctx context.Context, ids []string) (State, error) {
	log := d.log.With(zap.String("run_id", d.run.ID.String()))

	log.Info("authenticating")
	if err := d.creds.EnsureRefreshed(ctx); err != nil {
		log.Error("initial authentication failed", zap.Error(err))
		return StateFailed, fmt.Errorf("initial authentication failed: %w", err)
	}

	pending := d.store.FilterPending(ids)
	log.Info("dispatching",
		zap.Int("identifiers", len(ids)),
		zap.Int("pending", len(pending)),
		zap.Int("concurrency", d.concurrency))

	var succeeded, skipped atomic.Int64
	var next atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)

	// Workers pull the next identifier themselves; the cancellation flag is
	// checked before each new unit is taken, so units already started run
	// to completion while no new ones begin.
	for i := 0; i < d.concurrency; i++ {
		g.Go(func() error {
			for {
				if d.run.Cancelled() {
					return nil
				}
				idx := next.Add(1) - 1
				if idx >= int64(len(pending)) {
					return nil
				}
				id := pending[idx]

				if !d.store.Reserve(id) {
					log.Debug("identifier already reserved, skipping duplicate", zap.String("product_number", id))
					continue
				}
				rec, skip, err := d.pipeline.Fetch(gCtx, id)
				if err != nil {
					return err
				}
				if skip != "" {
					skipped.Add(1)
					continue
				}
				if err := d.store.Record(rec); err != nil {
					return err
				}
				succeeded.Add(1)
			}
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("run aborted", zap.Error(err))
		return StateFailed, err
	}

	log.Info("all submitted units finished",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("skipped", skipped.Load()))

	if d.run.Cancelled() {
		if err := d.store.PersistPartial(); err != nil {
			log.Error("failed to persist partial snapshot", zap.Error(err))
		}
		log.Warn("run interrupted, partial snapshot retained, nothing committed")
		return StateInterrupted, nil
	}

	path, err := d.store.Finalize()
	if err != nil {
		return StateFailed, err
	}

	if path != "" && d.publisher != nil {
		if err := d.publisher.Publish(ctx, path); err != nil {
			log.Error("publish failed", zap.Error(err))
		}
	}

	log.Info("run completed", zap.String("output", path))
	return StateCompleted, nil
}
