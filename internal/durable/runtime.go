package durable

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/models"
)

// Handler is the body of a mutating actor operation. It runs with exclusive
// access to the project key and must route every side effect through the
// Context's step primitives.
type Handler func(ctx context.Context, c *Context) ([]byte, error)

// QueryFunc is the body of a read-only operation. It observes the latest
// committed snapshot (nil if the project does not exist) and must not
// mutate it.
type QueryFunc func(project *models.ResearchProject) ([]byte, error)

// Invocation identifies one logical mutating request. ID is the idempotency
// key: re-driving a completed invocation returns its recorded outcome
// without re-running the handler.
type Invocation struct {
	ID        string
	Key       string
	Operation string
}

// Runtime provides per-key single-writer serialization, step journaling,
// and crash-safe replay over the keyed durable store. Many keys execute
// concurrently; all mutating operations on one key are totally ordered.
type Runtime struct {
	journal  interfaces.JournalStorage
	projects interfaces.ProjectStorage
	retry    *RetryPolicy
	logger   arbor.ILogger
	locks    sync.Map // key -> *sync.RWMutex
}

// NewRuntime creates a runtime over the given storage surfaces.
func NewRuntime(journal interfaces.JournalStorage, projects interfaces.ProjectStorage, retry *RetryPolicy, logger arbor.ILogger) *Runtime {
	if retry == nil {
		retry = NewRetryPolicy()
	}
	return &Runtime{
		journal:  journal,
		projects: projects,
		retry:    retry,
		logger:   logger,
	}
}

// RetryPolicy returns the step retry policy shared with orchestrated steps.
func (r *Runtime) RetryPolicy() *RetryPolicy {
	return r.retry
}

func (r *Runtime) lockFor(key string) *sync.RWMutex {
	lk, _ := r.locks.LoadOrStore(key, &sync.RWMutex{})
	return lk.(*sync.RWMutex)
}

// Invoke executes a mutating operation under the key's writer lock.
//
// Replay semantics: journaled step results recorded by a previous attempt of
// the same invocation ID are consumed in order instead of re-executing their
// functions. On success the mutated snapshot and the invocation completion
// record commit in one transaction. Terminal faults are recorded so that a
// re-driven invocation reports the same outcome; transient-exhausted faults
// are not, so a later re-drive resumes at the first unjournaled step.
func (r *Runtime) Invoke(ctx context.Context, inv Invocation, handler Handler) ([]byte, error) {
	if rec, err := r.journal.GetInvocation(ctx, inv.ID); err == nil {
		return resultFromRecord(rec)
	} else if !errors.Is(err, interfaces.ErrInvocationNotFound) {
		return nil, WrapFault(KindInternal, err, "invocation lookup failed")
	}

	lock := r.lockFor(inv.Key)
	lock.Lock()
	defer lock.Unlock()

	// A queued duplicate may have committed while we waited for the lock.
	if rec, err := r.journal.GetInvocation(ctx, inv.ID); err == nil {
		return resultFromRecord(rec)
	}

	steps, err := r.journal.ListSteps(ctx, inv.ID)
	if err != nil {
		return nil, WrapFault(KindInternal, err, "journal load failed")
	}
	if len(steps) > 0 {
		r.logger.Info().
			Str("invocation", inv.ID).
			Str("key", inv.Key).
			Str("operation", inv.Operation).
			Int("recorded_steps", len(steps)).
			Msg("Resuming invocation from journal")
	}

	project, err := r.projects.Get(ctx, inv.Key)
	if err != nil && !errors.Is(err, interfaces.ErrProjectNotFound) {
		return nil, WrapFault(KindInternal, err, "project load failed")
	}

	c := &Context{
		runtime:  r,
		inv:      inv,
		recorded: steps,
		project:  project,
		logger:   r.logger,
	}

	result, handlerErr := handler(ctx, c)
	if handlerErr != nil {
		if IsKind(handlerErr, KindUnavailable) {
			// Leave the invocation open: journaled steps survive, and a
			// re-drive resumes past them.
			return nil, handlerErr
		}
		failed := &interfaces.InvocationRecord{
			ID:          inv.ID,
			ProjectKey:  inv.Key,
			Operation:   inv.Operation,
			Status:      interfaces.InvocationFailed,
			ErrorKind:   string(KindOf(handlerErr)),
			Error:       handlerErr.Error(),
			CompletedAt: time.Now().UTC(),
		}
		if err := r.journal.FailInvocation(ctx, failed); err != nil {
			r.logger.Warn().Err(err).Str("invocation", inv.ID).Msg("Failed to record terminal invocation outcome")
		}
		return nil, handlerErr
	}

	completed := &interfaces.InvocationRecord{
		ID:          inv.ID,
		ProjectKey:  inv.Key,
		Operation:   inv.Operation,
		Status:      interfaces.InvocationCompleted,
		Result:      result,
		CompletedAt: time.Now().UTC(),
	}

	var snapshot *models.ResearchProject
	if c.dirty {
		snapshot = c.project
	}
	if err := r.journal.CommitInvocation(ctx, completed, snapshot); err != nil {
		return nil, WrapFault(KindInternal, err, "invocation commit failed")
	}

	return result, nil
}

// Query executes a read-only operation under the key's shared lock against
// the latest committed snapshot.
func (r *Runtime) Query(ctx context.Context, key string, fn QueryFunc) ([]byte, error) {
	lock := r.lockFor(key)
	lock.RLock()
	defer lock.RUnlock()

	project, err := r.projects.Get(ctx, key)
	if err != nil && !errors.Is(err, interfaces.ErrProjectNotFound) {
		return nil, WrapFault(KindInternal, err, "project load failed")
	}

	return fn(project)
}

func resultFromRecord(rec *interfaces.InvocationRecord) ([]byte, error) {
	if rec.Status == interfaces.InvocationCompleted {
		return rec.Result, nil
	}
	kind := Kind(rec.ErrorKind)
	if kind == "" {
		kind = KindInternal
	}
	return nil, NewFault(kind, "%s", rec.Error)
}
