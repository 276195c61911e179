// Package sequence orchestrates the handling of a single request: it resolves
// the target operation from a binding context, invokes it through the
// interceptor chain, and writes exactly one response describing the outcome.
//
// Every failure that reaches a Sequence, whether from resolution, an
// interceptor, the operation, or a panic, is written as an HTTP 500 with a
// lectern.ErrorResponse body. A Sequence is the only place in lectern where
// errors are turned into responses.
package sequence

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/bind"
	"github.com/dekarrin/lectern/intercept"
	"github.com/dekarrin/lectern/internal/logging"
	"github.com/google/uuid"
)

// HeaderRequestID is the response header that carries the ID generated for
// each request.
const HeaderRequestID = "X-Request-Id"

// State is the point a request has reached in a Sequence.
type State int

const (
	Received State = iota
	Resolving
	Invoking
	Responding
	Done
	Errored
)

func (s State) String() string {
	switch s {
	case Received:
		return "RECEIVED"
	case Resolving:
		return "RESOLVING"
	case Invoking:
		return "INVOKING"
	case Responding:
		return "RESPONDING"
	case Done:
		return "DONE"
	case Errored:
		return "ERRORED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Target describes the operation a request is routed to.
type Target struct {
	// Operation is the binding key of the lectern.Operation to invoke.
	Operation string

	// Args are passed to the operation in order.
	Args []any

	// Status is the HTTP status of a successful response. If zero, 200 is
	// used.
	Status int
}

// TargetFunc extracts the Target of a request. It is supplied by routing, and
// any error it returns is handled like any other failure of the request.
type TargetFunc func(req *http.Request) (Target, error)

// Static returns a TargetFunc that always targets the operation bound to key
// with no arguments.
func Static(key string, status int) TargetFunc {
	return func(req *http.Request) (Target, error) {
		return Target{Operation: key, Status: status}, nil
	}
}

// Sequence handles requests by invoking operations resolved from a root
// binding context. A Sequence is safe for concurrent use.
type Sequence struct {
	root  *bind.Context
	chain *intercept.Chain
	log   lectern.Logger

	// OnTransition, if set, is called every time a request moves from one
	// State to another. It is called from the goroutine handling the request.
	OnTransition func(req *http.Request, from, to State)
}

// New creates a Sequence that resolves operations from child contexts of root
// and invokes them through chain. If chain is nil, operations are invoked
// directly.
func New(root *bind.Context, chain *intercept.Chain, log lectern.Logger) *Sequence {
	if chain == nil {
		chain = intercept.NewChain()
	}
	return &Sequence{
		root:  root,
		chain: chain,
		log:   log,
	}
}

// Handler returns an http.HandlerFunc that handles every request with target.
func (s *Sequence) Handler(target TargetFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s.Handle(w, req, target)
	}
}

// Handle processes a single request. A child of the root binding context is
// created for it, with the request bound under bind.KeyRequest and a new
// request ID bound under bind.KeyRequestID. bind.KeyLogger is rebound in it to
// a logger that tags every line with the request ID. The child is closed once
// the response has been written.
//
// Handle writes at most one response to w. If the request's context is done by
// the time a response is ready, nothing is written.
func (s *Sequence) Handle(w http.ResponseWriter, req *http.Request, target TargetFunc) {
	id := uuid.New()
	r := &run{
		seq:   s,
		log:   logging.ForRequest(s.log, id.String()),
		w:     w,
		req:   req,
		id:    id,
		state: Received,
	}

	bctx := s.root.NewChild("request " + id.String())
	defer func() {
		if err := bctx.Close(); err != nil {
			r.log.Warnf("close request context: %v", err)
		}
	}()

	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("panic: %v\nSTACK TRACE: %s", p, string(debug.Stack()))
			r.fail(fmt.Errorf("panic: %v", p))
		}
	}()

	bind.BindValue(bctx, bind.KeyRequest, req)
	bind.BindValue(bctx, bind.KeyRequestID, id.String())
	bind.BindValue(bctx, bind.KeyLogger, r.log)

	result, err := r.process(bctx, target)
	if err != nil {
		r.fail(err)
		return
	}
	r.respond(result)
}

// run is the state of one request passing through a Sequence.
type run struct {
	seq     *Sequence
	log     lectern.Logger
	w       http.ResponseWriter
	req     *http.Request
	id      uuid.UUID
	state   State
	written bool
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	r.log.Tracef("%s -> %s", from, to)
	if r.seq.OnTransition != nil {
		r.seq.OnTransition(r.req, from, to)
	}
}

// process resolves and invokes the target, returning a Result that is ready to
// be written.
func (r *run) process(bctx *bind.Context, target TargetFunc) (lectern.Result, error) {
	ctx := r.req.Context()

	r.transition(Resolving)
	tgt, err := target(r.req)
	if err != nil {
		return lectern.Result{}, err
	}
	op, err := bind.Resolve(ctx, bctx, bind.Key[lectern.Operation](tgt.Operation))
	if err != nil {
		return lectern.Result{}, err
	}
	if op == nil {
		return lectern.Result{}, lectern.NewError(fmt.Sprintf("key %q holds a nil operation", tgt.Operation), lectern.ErrWrongType)
	}

	r.transition(Invoking)
	inv := intercept.NewInvocation(tgt.Operation, bctx, tgt.Args...)
	inv.ID = r.id
	out, err := r.seq.chain.Invoke(ctx, inv, func(ctx context.Context, inv *intercept.Invocation) (any, error) {
		return op(ctx, inv.Args...)
	})
	if err != nil {
		return lectern.Result{}, err
	}

	status := tgt.Status
	if status == 0 {
		status = http.StatusOK
	}
	result := lectern.Response(status, out, "%s", tgt.Operation).WithHeader(HeaderRequestID, r.id.String())
	if err := result.PrepareMarshaledResponse(); err != nil {
		return lectern.Result{}, lectern.NewError("encode result of "+tgt.Operation, err)
	}
	return result, nil
}

// fail converts err into the error response and writes it. Calling fail after
// a response has already been written only records the state change.
func (r *run) fail(err error) {
	r.transition(Errored)
	r.respond(lectern.Err(err).WithHeader(HeaderRequestID, r.id.String()))
}

func (r *run) respond(result lectern.Result) {
	r.transition(Responding)
	defer r.transition(Done)

	if r.written {
		return
	}
	r.written = true

	if err := r.req.Context().Err(); err != nil {
		r.log.Debugf("not writing HTTP-%d; request ended: %v", result.Status, err)
		return
	}

	result.WriteResponse(r.w)
	r.log.LogResult(r.req, result)
}
