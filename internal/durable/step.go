package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/models"
)

// Context carries one invocation's replay cursor and working snapshot
// through a handler. Handlers must not touch the clock, random sources, or
// external services except through the step primitives below.
type Context struct {
	runtime  *Runtime
	inv      Invocation
	recorded []interfaces.StepRecord
	seq      int
	project  *models.ResearchProject
	dirty    bool
	logger   arbor.ILogger
}

// Key returns the project key this invocation is bound to.
func (c *Context) Key() string {
	return c.inv.Key
}

// Project returns the working snapshot, nil if the project does not exist.
// Mutations are only committed if MarkDirty was called and the handler
// returns without error.
func (c *Context) Project() *models.ResearchProject {
	return c.project
}

// SetProject installs a new working snapshot (project creation) and marks
// it for commit.
func (c *Context) SetProject(project *models.ResearchProject) {
	c.project = project
	c.dirty = true
}

// MarkDirty flags the working snapshot for commit.
func (c *Context) MarkDirty() {
	c.dirty = true
}

// Step runs a journaled side-effecting step. On first execution fn runs
// (with step-level retry for transient faults) and its result is persisted
// before the handler continues; on replay the recorded result is returned
// and fn is never called.
func (c *Context) Step(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if c.seq < len(c.recorded) {
		rec := c.recorded[c.seq]
		if rec.Name != name {
			return nil, NewFault(KindInternal, "journal divergence at step %d: recorded %q, handler requested %q", c.seq, rec.Name, name)
		}
		c.seq++
		c.logger.Debug().
			Str("invocation", c.inv.ID).
			Str("step", name).
			Int("seq", rec.Seq).
			Msg("Replaying journaled step result")
		return rec.Result, nil
	}

	var out []byte
	err := c.runtime.retry.Execute(ctx, c.logger, name, func() error {
		b, ferr := fn(ctx)
		if ferr != nil {
			return ferr
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec := &interfaces.StepRecord{
		Key:          fmt.Sprintf("%s/%06d", c.inv.ID, c.seq),
		InvocationID: c.inv.ID,
		Seq:          c.seq,
		Name:         name,
		Result:       out,
		RecordedAt:   time.Now().UTC(),
	}
	if err := c.runtime.journal.AppendStep(ctx, rec); err != nil {
		return nil, WrapFault(KindInternal, err, "journal append failed for step %q", name)
	}

	c.recorded = append(c.recorded, *rec)
	c.seq++
	return out, nil
}

// RunStep is a typed wrapper over Context.Step that JSON-encodes the step
// result for the journal.
func RunStep[T any](ctx context.Context, c *Context, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := c.Step(ctx, name, func(sctx context.Context) ([]byte, error) {
		v, ferr := fn(sctx)
		if ferr != nil {
			return nil, ferr
		}
		b, merr := json.Marshal(v)
		if merr != nil {
			return nil, WrapFault(KindInternal, merr, "step result marshal failed")
		}
		return b, nil
	})
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, WrapFault(KindInternal, err, "step result unmarshal failed for %q", name)
	}
	return v, nil
}

// Now is a journaled wall-clock read: replay yields the timestamp captured
// by the original attempt.
func (c *Context) Now(ctx context.Context, name string) (time.Time, error) {
	return RunStep(ctx, c, name, func(context.Context) (time.Time, error) {
		return time.Now().UTC(), nil
	})
}

// NewID is a journaled identifier generation: replay yields the id captured
// by the original attempt.
func (c *Context) NewID(ctx context.Context, name string, prefix string) (string, error) {
	return RunStep(ctx, c, name, func(context.Context) (string, error) {
		return prefix + "_" + uuid.New().String(), nil
	})
}
