package entity

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/rohankumardubey/brooklyn-server/config"
	"github.com/rohankumardubey/brooklyn-server/errors"
	"github.com/rohankumardubey/brooklyn-server/task"
)

// Coercion diagnostics are throttled: a poller invoking an effector with a
// bad argument would otherwise repeat the same warning every period.
var coerceWarnLimit = rate.NewLimiter(rate.Every(10*time.Second), 5)

// Invoke dispatches an effector by name. The invocation is wrapped in an
// entity-tagged unit of work and submitted to the execution substrate; the
// returned handle reports progress and carries the result.
//
// When the caller is already executing inside a unit of work for this same
// entity, the effector runs inline instead of being resubmitted, so nested
// invocations do not deadlock a saturated worker pool. The inline outcome is
// returned as an already-resolved handle, completed or failed.
//
// An unknown effector name fails with ErrNoSuchEffector; entities expose
// their operations as ordinary methods too, and callers holding a concrete
// entity should prefer those.
func (e *Entity) Invoke(ctx context.Context, effector string, args map[string]any) (*task.Task, error) {
	eff, ok := e.typ.Effector(effector)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q on %s", errors.ErrNoSuchEffector, effector, e.typ.Name()),
			"Entity", "Invoke", "effector lookup")
	}

	coerced := e.coerceArgs(eff, args)
	name := fmt.Sprintf("%s.%s", e.name, eff.Name)

	if id, inTask := task.EntityFromContext(ctx); inTask && id == e.id {
		// Inline failures resolve the handle, same as the submitted path
		result, err := e.runEffector(ctx, eff, coerced)
		if err != nil {
			return task.Failed(name, err), nil
		}
		return task.Completed(name, result), nil
	}

	t := task.NewForEntity(name, e.id, func(tctx context.Context) (any, error) {
		return e.runEffector(tctx, eff, coerced)
	})
	if err := e.svcs.Exec.Submit(t); err != nil {
		return nil, err
	}
	return t, nil
}

// coerceArgs shapes the supplied arguments against the effector's declared
// parameters: defaults fill gaps, declared types drive coercion. A value
// that refuses coercion is kept as supplied and logged with the call site;
// argument problems must never abort dispatch of an otherwise valid call.
func (e *Entity) coerceArgs(eff Effector, args map[string]any) map[string]any {
	out := make(map[string]any, len(eff.Params))
	for _, p := range eff.Params {
		raw, supplied := args[p.Name]
		if !supplied {
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		v, err := config.Coerce(raw, p.Type)
		if err != nil {
			if coerceWarnLimit.Allow() {
				e.svcs.Logger.Warn("effector argument failed coercion, passing through as supplied",
					"entity", e.name, "effector", eff.Name, "param", p.Name,
					"declaredType", p.Type, "caller", callSite(3), "error", err)
			}
			out[p.Name] = raw
			continue
		}
		out[p.Name] = v
	}
	// Undeclared arguments pass through untouched
	for k, v := range args {
		if _, declared := out[k]; !declared {
			if !hasParam(eff, k) {
				out[k] = v
			}
		}
	}
	return out
}

func hasParam(eff Effector, name string) bool {
	for _, p := range eff.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// runEffector executes the effector body, publishes its result sensor when
// one is declared, and emits a completion event.
func (e *Entity) runEffector(ctx context.Context, eff Effector, args map[string]any) (any, error) {
	result, err := eff.Body(ctx, e, args)
	if err != nil {
		return nil, err
	}
	if eff.Result.Name != "" {
		e.SetAttribute(eff.Result.Name, result)
	}
	e.svcs.Events.PublishEffector(e.applicationName(), e.id, eff.Name, result)
	return result, nil
}
