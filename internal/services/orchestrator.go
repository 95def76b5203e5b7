package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"livepreview/internal/config"
	"livepreview/internal/logger"
	"livepreview/internal/models"
	"livepreview/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	previewIDPrefix = "preview-"
	// terminal writes get their own deadline so an expired step context
	// cannot keep a preview from reaching failed
	terminalWriteTimeout = 10 * time.Second

	shutdownFailureMessage = "server shut down before the preview finished"
)

var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Orchestrator owns the preview state machine. Create persists a record and
// starts exactly one background workflow for it; Get serves polling reads.
type Orchestrator struct {
	store     store.Store
	generator Generator
	publisher Publisher
	log       *logger.Logger

	sem           *semaphore.Weighted
	stepTimeout   time.Duration
	keepScaffolds bool
	newID         func() string

	mu      sync.RWMutex
	closing bool
	wg      sync.WaitGroup

	// ids whose workflow has not returned yet
	flightMu sync.Mutex
	inflight map[string]struct{}
}

func NewOrchestrator(cfg *config.Config, st store.Store, gen Generator, pub Publisher, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:         st,
		generator:     gen,
		publisher:     pub,
		log:           log.With("component", "PreviewOrchestrator"),
		sem:           semaphore.NewWeighted(int64(cfg.MaxWorkflows)),
		stepTimeout:   cfg.StepTimeout,
		keepScaffolds: cfg.KeepScaffolds,
		newID:         newPreviewID,
		inflight:      make(map[string]struct{}),
	}
}

func newPreviewID() string {
	return previewIDPrefix + uuid.NewString()
}

// Create records a new preview in the building state and launches its
// workflow without waiting for it.
func (o *Orchestrator) Create(ctx context.Context, prompt, userID string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrInvalidPrompt
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = models.AnonymousUser
	}

	now := time.Now().UTC()
	p := &models.Preview{
		ID:        o.newID(),
		Prompt:    prompt,
		UserID:    userID,
		Status:    models.StatusBuilding,
		CreatedAt: now,
		UpdatedAt: now,
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closing {
		return "", ErrShuttingDown
	}
	if err := o.store.Insert(ctx, p); err != nil {
		return "", err
	}

	o.track(p.ID)
	o.wg.Add(1)
	go o.run(p.ID, prompt)

	o.log.Info("Preview created", "preview_id", p.ID, "user_id", userID)
	return p.ID, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Preview, error) {
	return o.store.Read(ctx, id)
}

// Wait stops accepting new previews and blocks until every running workflow
// has reached a terminal state or ctx ends. When ctx ends first, previews
// still in flight are marked failed before Wait returns ctx.Err().
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.abandon()
		return ctx.Err()
	}
}

func (o *Orchestrator) track(id string) {
	o.flightMu.Lock()
	o.inflight[id] = struct{}{}
	o.flightMu.Unlock()
}

func (o *Orchestrator) untrack(id string) {
	o.flightMu.Lock()
	delete(o.inflight, id)
	o.flightMu.Unlock()
}

// abandon fails every preview whose workflow has not returned. Writes are
// conditional on the status just read, so a workflow that moves the record
// concurrently causes a conflict and another attempt.
func (o *Orchestrator) abandon() {
	o.flightMu.Lock()
	ids := make([]string, 0, len(o.inflight))
	for id := range o.inflight {
		ids = append(ids, id)
	}
	o.flightMu.Unlock()

	for _, id := range ids {
		log := o.log.With("preview_id", id)
		ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
		for attempt := 0; attempt < 3; attempt++ {
			rec, err := o.store.Read(ctx, id)
			if err != nil {
				log.Error("Failed to read preview at shutdown", "error", err)
				break
			}
			if rec.Status.Terminal() {
				break
			}
			_, err = o.store.Update(ctx, id, store.Transition(rec.Status, models.StatusFailed).WithError(shutdownFailureMessage))
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				log.Error("Failed to record preview failure at shutdown", "from", rec.Status, "error", err)
				break
			}
			log.Warn("Preview status changed", "from", rec.Status, "to", models.StatusFailed, "reason", shutdownFailureMessage)
			break
		}
		cancel()
	}
}

// run drives one preview to live or failed. state tracks the last status
// persisted, so every write is conditional on it.
func (o *Orchestrator) run(id, prompt string) {
	defer o.wg.Done()
	defer o.untrack(id)

	log := o.log.With("preview_id", id)
	state := models.StatusBuilding

	defer func() {
		if r := recover(); r != nil {
			log.Error("Workflow panic", "panic", r, "stack", string(debug.Stack()))
			o.fail(log, id, &state, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx := context.Background()
	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(log, id, &state, "could not schedule workflow: "+err.Error())
		return
	}
	defer o.sem.Release(1)

	if !o.advance(ctx, log, id, &state, store.Transition(state, models.StatusGenerating)) {
		return
	}

	started := time.Now()
	scaffold, err := o.generate(ctx, prompt)
	if err != nil {
		log.Warn("Code generation failed", "error", err, "elapsed", time.Since(started))
		o.fail(log, id, &state, err.Error())
		return
	}
	if !o.keepScaffolds {
		defer func() {
			if err := scaffold.Remove(); err != nil {
				log.Warn("Failed to remove scaffold", "dir", scaffold.Dir, "error", err)
			}
		}()
	}

	if !o.advance(ctx, log, id, &state, store.Transition(state, models.StatusDeploying)) {
		return
	}

	started = time.Now()
	liveURL, err := o.publish(ctx, scaffold, id)
	if err != nil {
		log.Warn("Deployment failed", "error", err, "elapsed", time.Since(started))
		o.fail(log, id, &state, err.Error())
		return
	}

	o.advance(ctx, log, id, &state, store.Transition(state, models.StatusLive).WithLiveURL(liveURL))
}

// advance persists a forward transition. Any store error fails the preview.
func (o *Orchestrator) advance(ctx context.Context, log *logger.Logger, id string, state *models.Status, patch store.Patch) bool {
	to := *patch.Status
	if !models.CanTransition(*state, to) {
		o.fail(log, id, state, fmt.Sprintf("illegal transition %s -> %s", *state, to))
		return false
	}
	if _, err := o.store.Update(ctx, id, patch); err != nil {
		log.Error("Failed to persist transition", "from", *state, "to", to, "error", err)
		o.fail(log, id, state, "failed to record status "+string(to)+": "+err.Error())
		return false
	}
	log.Info("Preview status changed", "from", *state, "to", to)
	*state = to
	return true
}

func (o *Orchestrator) fail(log *logger.Logger, id string, state *models.Status, msg string) {
	if state.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	patch := store.Transition(*state, models.StatusFailed).WithError(msg)
	if _, err := o.store.Update(ctx, id, patch); err != nil {
		log.Error("Failed to record preview failure", "from", *state, "reason", msg, "error", err)
		return
	}
	log.Info("Preview status changed", "from", *state, "to", models.StatusFailed, "reason", msg)
	*state = models.StatusFailed
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (*Scaffold, error) {
	ctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	sc, err := await(ctx, func(ctx context.Context) (*Scaffold, error) {
		return o.generator.Generate(ctx, prompt)
	}, o.discardLateScaffold)
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return nil, genErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &GenerationError{Msg: fmt.Sprintf("code generation timed out after %s", o.stepTimeout), Err: err}
		}
		return nil, &GenerationError{Err: err}
	}
	if sc == nil || sc.Dir == "" {
		return nil, &GenerationError{Msg: "code generator returned no scaffold"}
	}
	return sc, nil
}

func (o *Orchestrator) publish(ctx context.Context, sc *Scaffold, siteName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	liveURL, err := await(ctx, func(ctx context.Context) (string, error) {
		return o.publisher.Publish(ctx, sc, siteName)
	}, nil)
	if err != nil {
		var pubErr *PublishError
		if errors.As(err, &pubErr) {
			return "", pubErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &PublishError{Msg: fmt.Sprintf("deployment timed out after %s", o.stepTimeout), Err: err}
		}
		return "", &PublishError{Err: err}
	}
	if liveURL == "" {
		return "", &PublishError{Msg: "publisher returned an empty url"}
	}
	return liveURL, nil
}

// discardLateScaffold removes a scaffold that arrived after its step had
// already timed out.
func (o *Orchestrator) discardLateScaffold(sc *Scaffold) {
	if o.keepScaffolds || sc == nil || sc.Dir == "" {
		return
	}
	if err := sc.Remove(); err != nil {
		o.log.Warn("Failed to remove late scaffold", "dir", sc.Dir, "error", err)
	}
}

// await runs fn in its own goroutine and returns when it finishes or ctx
// ends, whichever comes first. Panics inside fn come back as errors. If ctx
// ends first, a successful result that arrives later is passed to late.
func await[T any](ctx context.Context, fn func(context.Context) (T, error), late func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		if late != nil {
			go func() {
				if r := <-ch; r.err == nil {
					late(r.v)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	}
}
