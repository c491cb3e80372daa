package updater

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/observability/log"
)

const (
	ActionEnvironmentTick       = "environment-tick"
	ActionEnvironmentTickLogged = "environment-tick-logged"
)

// Factory builds an action bound to an environment.
type Factory func(env Stepper, logger log.Log) Action

// Registry maps action names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in actions.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[ActionEnvironmentTick] = func(env Stepper, _ log.Log) Action { return EnvironmentTick(env) }
	r.factories[ActionEnvironmentTickLogged] = EnvironmentTickLogged
	return r
}

func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return errors.Wrapf(ErrDuplicateAction, "%q", name)
	}
	r.factories[name] = f
	return nil
}

// Build resolves name to an action bound to env.
func (r *Registry) Build(name string, env Stepper, logger log.Log) (Action, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAction, "%q", name)
	}
	if logger == nil {
		logger = log.Provide()
	}
	return f(env, logger), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Updater runs the current action on every trigger. The action may be swapped
// while the updater is scheduled.
type Updater struct {
	action atomic.Pointer[Action]
}

func NewUpdater(a Action) *Updater {
	u := &Updater{}
	u.SetAction(a)
	return u
}

func (u *Updater) SetAction(a Action) {
	if a == nil {
		u.action.Store(nil)
		return
	}
	u.action.Store(&a)
}

// Action returns the current action or nil.
func (u *Updater) Action() Action {
	if p := u.action.Load(); p != nil {
		return *p
	}
	return nil
}

func (u *Updater) Invoke(ctx context.Context) error {
	a := u.Action()
	if a == nil {
		return ErrNoAction
	}
	return a.Invoke(ctx)
}
