package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"unilink.org/internal/obs"
)

// Condition is a hard-abort check evaluated before any step runs.
type Condition interface {
	Name() string
	Check(ctx context.Context, data *Data) error
}

// Step is one unit of the ordered pipeline. A returned error aborts the
// remaining steps; mutations already applied to Data stay.
type Step interface {
	Name() string
	Run(ctx context.Context, data *Data) error
}

// Task is a best-effort side effect executed after commit. Task failures
// never undo authentication.
type Task interface {
	Name() string
	Run(ctx context.Context, data *Data) error
}

// SoftError aggregates task failures of an otherwise successful attempt. The
// caller must treat it as success-with-warnings, never as a hard failure.
type SoftError struct {
	Errs []error
}

func (e *SoftError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("auth: %d post-auth task(s) failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *SoftError) Unwrap() []error { return e.Errs }

// IsSoft reports whether err is (or wraps) a SoftError.
func IsSoft(err error) bool {
	var soft *SoftError
	return errors.As(err, &soft)
}

// Process orchestrates one authentication attempt: conditions, then the
// ordered steps, then the post-auth tasks, with a persistence checkpoint
// after each phase. Ordering of the slices is part of the contract.
type Process struct {
	users      UserStore
	conditions []Condition
	steps      []Step
	tasks      []Task
}

// NewProcess wires the orchestrator. The slices are used in the given order.
func NewProcess(users UserStore, conditions []Condition, steps []Step, tasks []Task) *Process {
	return &Process{
		users:      users,
		conditions: conditions,
		steps:      steps,
		tasks:      tasks,
	}
}

// Run executes the attempt. Return values: nil on full success, *SoftError
// when only post-auth tasks failed (the user is authenticated), any other
// error when the attempt was aborted (the user is not authenticated).
func (p *Process) Run(ctx context.Context, data *Data) error {
	var condErr error
	for _, cond := range p.conditions {
		if err := ctx.Err(); err != nil {
			condErr = err
			break
		}
		if err := cond.Check(ctx, data); err != nil {
			condErr = fmt.Errorf("condition %s: %w", cond.Name(), err)
			break
		}
	}

	// The record is flushed even when a condition failed: field fills made so
	// far are useful to retry from. A persistence failure supersedes the
	// condition result.
	if err := p.saveUser(ctx, data); err != nil {
		obs.ObserveLinkAttempt("error")
		return fmt.Errorf("auth: persist user: %w", err)
	}
	if condErr != nil {
		obs.ObserveLinkAttempt("rejected")
		return condErr
	}

	var stepErr error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			stepErr = err
			break
		}
		if err := step.Run(ctx, data); err != nil {
			stepErr = fmt.Errorf("step %s: %w", step.Name(), err)
			break
		}
		if data.merged {
			break
		}
	}

	// Flush field fills up to the failing step. Role decisions live only in
	// memory, so this cannot destroy committed state. After a merge the
	// in-progress record is gone and the surviving one was already updated.
	if !data.merged {
		if err := p.saveUser(ctx, data); err != nil {
			obs.ObserveLinkAttempt("error")
			return fmt.Errorf("auth: persist user: %w", err)
		}
	}
	if stepErr != nil {
		obs.ObserveLinkAttempt("rejected")
		return stepErr
	}

	// Tasks run unconditionally, all of them: a failure is collected, logged
	// and reported as soft, never short-circuiting the rest.
	var soft []error
	for _, task := range p.tasks {
		if err := task.Run(ctx, data); err != nil {
			obs.Warn("post-auth task failed", map[string]any{
				"task":   task.Name(),
				"member": data.User.MemberID,
				"error":  err.Error(),
			})
			soft = append(soft, fmt.Errorf("task %s: %w", task.Name(), err))
		}
	}
	if len(soft) > 0 {
		obs.ObserveLinkAttempt("partial")
		return &SoftError{Errs: soft}
	}
	obs.ObserveLinkAttempt("success")
	return nil
}

func (p *Process) saveUser(ctx context.Context, data *Data) error {
	if data.User == nil {
		return nil
	}
	if data.User.ID == 0 {
		return p.users.Create(ctx, data.User)
	}
	return p.users.Update(ctx, data.User)
}
