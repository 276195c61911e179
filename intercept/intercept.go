// Package intercept provides the ordered chain of interceptors that every
// target operation is invoked through.
package intercept

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/bind"
	"github.com/dekarrin/lectern/internal/sorted"
	"github.com/google/uuid"
)

// Invocation is a single call of a target operation as seen by interceptors.
type Invocation struct {
	// ID uniquely identifies the invocation.
	ID uuid.UUID

	// Target is the name of the operation being invoked.
	Target string

	// Args are the arguments the operation is invoked with.
	Args []any

	// Context is the binding context of the request that led to the
	// invocation.
	Context *bind.Context
}

// NewInvocation creates an Invocation of target with a new random ID.
func NewInvocation(target string, bctx *bind.Context, args ...any) *Invocation {
	return &Invocation{
		ID:      uuid.New(),
		Target:  target,
		Args:    args,
		Context: bctx,
	}
}

func (inv *Invocation) String() string {
	return fmt.Sprintf("%s[%s]", inv.Target, inv.ID)
}

// Next continues an invocation with the rest of the chain. It may be called at
// most once by each interceptor; a second call returns an error that will
// return true for errors.Is(err, lectern.ErrNextCalledTwice) without
// continuing the chain again.
type Next func(ctx context.Context) (any, error)

// Handler is the innermost step of a chain, normally the target operation
// itself.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// Interceptor wraps an invocation. It may act before calling next, after it
// returns, or on its failure, and may short-circuit by returning without
// calling next at all. Errors it does not handle must be returned unmodified.
type Interceptor func(ctx context.Context, inv *Invocation, next Next) (any, error)

// Chain is an ordered list of Interceptors. The first interceptor registered is
// the outermost one. A Chain is safe for concurrent use, but all calls to
// Register should be made before the first call to Invoke.
type Chain struct {
	mtx          sync.RWMutex
	interceptors []Interceptor
}

// NewChain creates a Chain with the given interceptors registered in order.
func NewChain(interceptors ...Interceptor) *Chain {
	ch := &Chain{}
	for _, i := range interceptors {
		ch.Register(i)
	}
	return ch
}

// Register appends i to the chain, making it the innermost interceptor so far.
func (ch *Chain) Register(i Interceptor) {
	if i == nil {
		panic("nil interceptor")
	}
	ch.mtx.Lock()
	defer ch.mtx.Unlock()
	ch.interceptors = append(ch.interceptors, i)
}

// Len returns the number of interceptors in the chain.
func (ch *Chain) Len() int {
	ch.mtx.RLock()
	defer ch.mtx.RUnlock()
	return len(ch.interceptors)
}

// Invoke runs inv through every interceptor in the chain and then final.
// Interceptors are entered in registration order and exited in the reverse
// order. The result is whatever the outermost interceptor returns.
func (ch *Chain) Invoke(ctx context.Context, inv *Invocation, final Handler) (any, error) {
	ch.mtx.RLock()
	interceptors := make([]Interceptor, len(ch.interceptors))
	copy(interceptors, ch.interceptors)
	ch.mtx.RUnlock()

	var call func(ctx context.Context, i int) (any, error)
	call = func(ctx context.Context, i int) (any, error) {
		if i >= len(interceptors) {
			return final(ctx, inv)
		}

		var called atomic.Bool
		next := func(ctx context.Context) (any, error) {
			if !called.CompareAndSwap(false, true) {
				return nil, lectern.NewError(fmt.Sprintf("interceptor %d of %s", i, inv.Target), lectern.ErrNextCalledTwice)
			}
			return call(ctx, i+1)
		}
		return interceptors[i](ctx, inv, next)
	}

	return call(ctx, 0)
}

// Factory creates a new Interceptor.
type Factory func() (Interceptor, error)

// Registry holds named interceptor factories so that a chain can be assembled
// from configuration.
type Registry struct {
	mtx       sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds f under name, replacing any factory already registered under
// it.
func (r *Registry) Register(name string, f Factory) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.factories[name] = f
}

// Names returns the names of every registered factory in sorted order.
func (r *Registry) Names() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	return sorted.Keys(r.factories)
}

// Build creates a Chain holding one new interceptor for each of names, in the
// same order. It returns an error if any name is not registered or any
// factory fails.
func (r *Registry) Build(names []string) (*Chain, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	ch := NewChain()
	for _, n := range names {
		f, ok := r.factories[n]
		if !ok {
			return nil, fmt.Errorf("no interceptor named %q", n)
		}
		i, err := f()
		if err != nil {
			return nil, fmt.Errorf("create interceptor %q: %w", n, err)
		}
		ch.Register(i)
	}
	return ch, nil
}
