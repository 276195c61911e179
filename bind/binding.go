package bind

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/dekarrin/lectern/internal/sorted"
)

// Kind is the way a Binding produces its value.
type Kind int

const (
	// KindValue bindings hold a constant value.
	KindValue Kind = iota

	// KindClass bindings call a constructor function with their resolved
	// dependencies.
	KindClass

	// KindProvider bindings construct a Provider the way a KindClass binding
	// would and then take their value from calling Value on it.
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindClass:
		return "class"
	case KindProvider:
		return "provider"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Scope is the lifetime of a value produced by a Binding.
type Scope int

const (
	// Transient values are produced anew at every resolution.
	Transient Scope = iota

	// Singleton values are produced once and cached on the Context that owns
	// the Binding.
	Singleton

	// PerRequest values are cached on the Context that resolution started
	// from, which is normally the child Context created for a request.
	PerRequest
)

func (s Scope) String() string {
	switch s {
	case Transient:
		return "transient"
	case Singleton:
		return "singleton"
	case PerRequest:
		return "per-request"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Provider is a factory for a single value. Provider bindings resolve to the
// result of calling Value.
type Provider interface {
	Value(ctx context.Context) (any, error)
}

var (
	typeContext  = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeError    = reflect.TypeOf((*error)(nil)).Elem()
	typeProvider = reflect.TypeOf((*Provider)(nil)).Elem()
)

// Spec describes how a Binding produces its value. Create one with ToValue,
// ToClass, or ToProvider.
type Spec struct {
	kind  Kind
	value any

	ctor       reflect.Value
	deps       []string
	wantsCtx   bool
	returnsErr bool
}

// ToValue returns a Spec for a constant value.
func ToValue(v any) Spec {
	return Spec{kind: KindValue, value: v}
}

// ToClass returns a Spec whose value is built by calling ctor. ctor must be a
// function whose parameters are an optional leading context.Context followed
// by one parameter per key in deps, in the same order; it must return either
// a single value or a value and an error.
//
// ToClass panics if ctor does not fit that shape.
func ToClass(ctor any, deps ...string) Spec {
	s := newCtorSpec(ctor, deps)
	s.kind = KindClass
	return s
}

// ToProvider returns a Spec whose value is obtained from a Provider. The
// Provider is built by calling ctor exactly as ToClass would, and the result
// of its Value method is the value of the binding. ctor's first return type
// must implement Provider.
//
// ToProvider panics if ctor does not fit that shape.
func ToProvider(ctor any, deps ...string) Spec {
	s := newCtorSpec(ctor, deps)

	outType := s.ctor.Type().Out(0)
	if !outType.Implements(typeProvider) {
		panic(fmt.Sprintf("provider constructor returns %s, which does not implement bind.Provider", outType))
	}

	s.kind = KindProvider
	return s
}

func newCtorSpec(ctor any, deps []string) Spec {
	v := reflect.ValueOf(ctor)
	if v.Kind() != reflect.Func || v.IsNil() {
		panic(fmt.Sprintf("constructor must be a non-nil function, got %T", ctor))
	}
	ft := v.Type()

	if ft.IsVariadic() {
		panic("constructor cannot be variadic")
	}

	s := Spec{ctor: v}

	numIn := ft.NumIn()
	if numIn > 0 && ft.In(0) == typeContext {
		s.wantsCtx = true
		numIn--
	}
	if numIn != len(deps) {
		panic(fmt.Sprintf("constructor takes %d dependencies but %d keys were given", numIn, len(deps)))
	}

	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != typeError {
			panic("constructor's second return value must be an error")
		}
		s.returnsErr = true
	default:
		panic("constructor must return a value and optionally an error")
	}

	s.deps = make([]string, len(deps))
	copy(s.deps, deps)
	return s
}

// Kind returns the kind of binding the Spec creates.
func (s Spec) Kind() Kind {
	return s.kind
}

// Deps returns the keys of the dependencies passed to the Spec's constructor.
// It is empty for KindValue Specs.
func (s Spec) Deps() []string {
	d := make([]string, len(s.deps))
	copy(d, s.deps)
	return d
}

// Binding is a single entry in a Context. It is created by calling Bind on a
// Context and can be further configured with its modifier methods, which
// should only be called during startup.
type Binding struct {
	key   string
	spec  Spec
	owner *Context

	mtx      sync.Mutex
	scope    Scope
	tags     map[string]struct{}
	created  bool
	instance any
}

// Key returns the key that the Binding is registered under.
func (b *Binding) Key() string {
	return b.key
}

// Kind returns the kind of the Binding.
func (b *Binding) Kind() Kind {
	return b.spec.kind
}

// Scope returns the scope of the Binding.
func (b *Binding) Scope() Scope {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.scope
}

// Tags returns the alphabetized tags of the Binding.
func (b *Binding) Tags() []string {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return sorted.Keys(b.tags)
}

// HasTag returns whether the Binding has been tagged with tag.
func (b *Binding) HasTag(tag string) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	_, ok := b.tags[tag]
	return ok
}

// InScope sets the scope of the Binding and returns it. Scope has no effect on
// KindValue bindings.
func (b *Binding) InScope(s Scope) *Binding {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.scope = s
	b.created = false
	b.instance = nil
	return b
}

// WithTags adds the given tags to the Binding and returns it.
func (b *Binding) WithTags(tags ...string) *Binding {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.tags == nil {
		b.tags = make(map[string]struct{}, len(tags))
	}
	for _, t := range tags {
		b.tags[t] = struct{}{}
	}
	return b
}

func (b *Binding) String() string {
	return fmt.Sprintf("%s (%s, %s)", b.key, b.spec.kind, b.Scope())
}
