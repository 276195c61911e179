// Package bind is a hierarchical dependency-injection context. Values are
// registered under string keys as constants, classes (constructor functions
// with declared dependency keys), or providers, and resolved by key. A child
// Context sees every binding of its ancestors and may shadow them.
package bind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/dekarrin/lectern"
)

// Context is a scope of bindings. The zero value is not usable; create one
// with New or with NewChild on an existing Context. A Context is safe for
// concurrent use.
type Context struct {
	name   string
	parent *Context

	mtx      sync.RWMutex
	bindings map[string]*Binding

	// values cached for PerRequest bindings resolved from this context.
	cache map[*Binding]any
}

// New creates a new root Context with the given name.
func New(name string) *Context {
	return &Context{
		name:     name,
		bindings: map[string]*Binding{},
		cache:    map[*Binding]any{},
	}
}

// NewChild creates a new Context whose parent is c.
func (c *Context) NewChild(name string) *Context {
	child := New(name)
	child.parent = c
	return child
}

// Name returns the name of the Context.
func (c *Context) Name() string {
	return c.name
}

// Parent returns the parent of the Context, or nil if it is a root Context.
func (c *Context) Parent() *Context {
	return c.parent
}

// Bind registers spec under key in c and returns the new Binding. Any binding
// already registered under key in c is replaced; bindings in ancestors of c
// are shadowed, not modified.
func (c *Context) Bind(key string, spec Spec) *Binding {
	b := &Binding{key: key, spec: spec, owner: c}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if old, ok := c.bindings[key]; ok {
		delete(c.cache, old)
	}
	c.bindings[key] = b
	return b
}

// Unbind removes the binding registered under key in c. It returns whether
// there was one. Bindings in ancestors of c are not affected.
func (c *Context) Unbind(key string) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	b, ok := c.bindings[key]
	if !ok {
		return false
	}
	delete(c.bindings, key)
	delete(c.cache, b)
	return true
}

// Contains returns whether key is bound in c itself.
func (c *Context) Contains(key string) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	_, ok := c.bindings[key]
	return ok
}

// IsBound returns whether key is bound in c or any of its ancestors.
func (c *Context) IsBound(key string) bool {
	_, ok := c.Binding(key)
	return ok
}

// Binding returns the binding that resolving key from c would use.
func (c *Context) Binding(key string) (*Binding, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mtx.RLock()
		b, ok := cur.bindings[key]
		cur.mtx.RUnlock()
		if ok {
			return b, true
		}
	}
	return nil, false
}

// Filter selects bindings in a call to Find.
type Filter func(b *Binding) bool

// All is a Filter that selects every binding.
func All(*Binding) bool {
	return true
}

// ByTag returns a Filter that selects bindings tagged with tag.
func ByTag(tag string) Filter {
	return func(b *Binding) bool {
		return b.HasTag(tag)
	}
}

// ByKeyPrefix returns a Filter that selects bindings whose key begins with
// prefix.
func ByKeyPrefix(prefix string) Filter {
	return func(b *Binding) bool {
		return strings.HasPrefix(b.key, prefix)
	}
}

// Find returns the alphabetized keys of every binding visible from c that f
// selects. Where a key is bound in more than one context, only the binding
// closest to c is given to f.
func (c *Context) Find(f Filter) []string {
	if f == nil {
		f = All
	}

	seen := map[string]struct{}{}
	var keys []string

	for cur := c; cur != nil; cur = cur.parent {
		cur.mtx.RLock()
		visible := make([]*Binding, 0, len(cur.bindings))
		for k, b := range cur.bindings {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			visible = append(visible, b)
		}
		cur.mtx.RUnlock()

		for _, b := range visible {
			if f(b) {
				keys = append(keys, b.key)
			}
		}
	}

	sort.Strings(keys)
	return keys
}

// Get resolves key from c. If the binding found for key needs to construct
// its value, ctx is passed to any constructor or Provider that accepts one.
//
// If key is not bound in c or any ancestor, the returned error will return true
// for errors.Is(err, lectern.ErrNotBound). If resolving key requires resolving
// key again, the returned error will return true for errors.Is(err,
// lectern.ErrCircularDependency).
func (c *Context) Get(ctx context.Context, key string) (any, error) {
	return c.resolve(ctx, key, nil)
}

// GetSync resolves key from c using the background context.
func (c *Context) GetSync(key string) (any, error) {
	return c.Get(context.Background(), key)
}

// Close releases every value cached in c for PerRequest bindings and every
// Singleton value owned by c. Any of them that implement io.Closer are closed.
// Resolving from c after Close constructs new values.
func (c *Context) Close() error {
	c.mtx.Lock()
	var closers []io.Closer
	for b, v := range c.cache {
		if cl, ok := v.(io.Closer); ok {
			closers = append(closers, cl)
		}
		delete(c.cache, b)
	}
	owned := make([]*Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		owned = append(owned, b)
	}
	c.mtx.Unlock()

	for _, b := range owned {
		if b.spec.kind == KindValue {
			continue
		}
		b.mtx.Lock()
		if b.created {
			if cl, ok := b.instance.(io.Closer); ok {
				closers = append(closers, cl)
			}
			b.created = false
			b.instance = nil
		}
		b.mtx.Unlock()
	}

	var errs []error
	for _, cl := range closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Context) resolve(ctx context.Context, key string, path []string) (any, error) {
	for _, visited := range path {
		if visited == key {
			cycle := append(append([]string{}, path...), key)
			return nil, lectern.NewError(strings.Join(cycle, " -> "), lectern.ErrCircularDependency)
		}
	}

	b, ok := c.Binding(key)
	if !ok {
		if len(path) > 0 {
			return nil, lectern.NewError(fmt.Sprintf("key %q (required by %q)", key, path[len(path)-1]), lectern.ErrNotBound)
		}
		return nil, lectern.NewError(fmt.Sprintf("key %q", key), lectern.ErrNotBound)
	}

	if b.spec.kind == KindValue {
		return b.spec.value, nil
	}

	path = append(path, key)

	switch b.Scope() {
	case Singleton:
		// dependencies of a singleton come from where it is bound, never from
		// the requesting scope.
		b.mtx.Lock()
		defer b.mtx.Unlock()
		if b.created {
			return b.instance, nil
		}
		v, err := b.owner.construct(ctx, b, path)
		if err != nil {
			return nil, err
		}
		b.instance = v
		b.created = true
		return v, nil
	case PerRequest:
		c.mtx.RLock()
		v, ok := c.cache[b]
		c.mtx.RUnlock()
		if ok {
			return v, nil
		}

		v, err := c.construct(ctx, b, path)
		if err != nil {
			return nil, err
		}

		c.mtx.Lock()
		defer c.mtx.Unlock()
		if existing, ok := c.cache[b]; ok {
			// a concurrent resolution stored first; that one wins.
			return existing, nil
		}
		c.cache[b] = v
		return v, nil
	default:
		return c.construct(ctx, b, path)
	}
}

// construct builds a new value for b, resolving its dependencies from c.
func (c *Context) construct(ctx context.Context, b *Binding, path []string) (v any, err error) {
	s := b.spec

	args := make([]reflect.Value, 0, len(s.deps)+1)
	if s.wantsCtx {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}

	ft := s.ctor.Type()
	for i, depKey := range s.deps {
		dep, err := c.resolve(ctx, depKey, path)
		if err != nil {
			return nil, lectern.NewError(fmt.Sprintf("resolve %q", b.key), err)
		}

		paramType := ft.In(len(args))
		arg, err := convertArg(dep, paramType)
		if err != nil {
			return nil, lectern.NewError(fmt.Sprintf("resolve %q: dependency %d (%q)", b.key, i, depKey), err, lectern.ErrWrongType)
		}
		args = append(args, arg)
	}

	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("resolve %q: constructor panicked: %v", b.key, r)
		}
	}()

	out := s.ctor.Call(args)
	if s.returnsErr && !out[1].IsNil() {
		return nil, lectern.NewError(fmt.Sprintf("resolve %q", b.key), out[1].Interface().(error))
	}
	v = out[0].Interface()

	if s.kind == KindProvider {
		p, ok := v.(Provider)
		if !ok || p == nil {
			return nil, lectern.NewError(fmt.Sprintf("resolve %q: constructor returned nil provider", b.key), lectern.ErrWrongType)
		}
		v, err = p.Value(ctx)
		if err != nil {
			return nil, lectern.NewError(fmt.Sprintf("resolve %q", b.key), err)
		}
	}

	return v, nil
}

func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			return reflect.Zero(t), nil
		default:
			return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", t)
		}
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", rv.Type(), t)
}
