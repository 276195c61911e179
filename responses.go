package lectern

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// UnexpectedErrorMessage is the message given to clients for every failed
// invocation. Details are only ever given in the "error" field.
const UnexpectedErrorMessage = "An unexpected error occurred"

// ErrorResponse is the body of every failure response.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Result is the outcome of processing a request, ready to be written to an
// http.ResponseWriter. Create one with OK, Created, or Err.
type Result struct {
	Status      int
	IsErr       bool
	IsJSON      bool
	InternalMsg string

	Resp interface{}

	hdrs [][2]string

	// set by calling PrepareMarshaledResponse.
	respJSONBytes []byte
}

// OK returns a 200 Result with the given object as its JSON body.
func OK(respObj interface{}, internalMsg ...interface{}) Result {
	return Response(http.StatusOK, respObj, internalMsg...)
}

// Created returns a 201 Result with the given object as its JSON body.
func Created(respObj interface{}, internalMsg ...interface{}) Result {
	return Response(http.StatusCreated, respObj, internalMsg...)
}

// Response returns a successful JSON Result with the given status.
func Response(status int, respObj interface{}, internalMsg ...interface{}) Result {
	return Result{
		Status:      status,
		IsJSON:      true,
		InternalMsg: formatInternal("OK", internalMsg),
		Resp:        respObj,
	}
}

// Fail returns a JSON Result with the given status whose body is an
// ErrorResponse with userMsg as its message. internalMsg is only logged.
func Fail(status int, userMsg string, internalMsg ...interface{}) Result {
	return Result{
		Status:      status,
		IsErr:       true,
		IsJSON:      true,
		InternalMsg: formatInternal(strings.ToLower(http.StatusText(status)), internalMsg),
		Resp: ErrorResponse{
			Message: userMsg,
			Error:   http.StatusText(status),
		},
	}
}

// NotFound returns an HTTP-404 Result.
func NotFound(internalMsg ...interface{}) Result {
	return Fail(http.StatusNotFound, "The requested resource was not found", internalMsg...)
}

// MethodNotAllowed returns an HTTP-405 Result for req.
func MethodNotAllowed(req *http.Request, internalMsg ...interface{}) Result {
	userMsg := fmt.Sprintf("Method %s is not allowed for %s", req.Method, req.URL.Path)
	return Fail(http.StatusMethodNotAllowed, userMsg, internalMsg...)
}

// Unauthorized returns an HTTP-401 Result along with the WWW-Authenticate
// header for bearer tokens.
func Unauthorized(userMsg string, internalMsg ...interface{}) Result {
	if userMsg == "" {
		userMsg = "You are not authorized to do that"
	}
	return Fail(http.StatusUnauthorized, userMsg, internalMsg...).
		WithHeader("WWW-Authenticate", `Bearer realm="lectern", charset="utf-8"`)
}

// formatInternal treats a leading string in internalMsg as a format string
// for the rest.
func formatInternal(def string, internalMsg []interface{}) string {
	if len(internalMsg) == 0 {
		return def
	}
	if format, ok := internalMsg[0].(string); ok {
		return fmt.Sprintf(format, internalMsg[1:]...)
	}
	return fmt.Sprint(internalMsg...)
}

// Err returns a 500 Result whose body is an ErrorResponse carrying the message
// of err.
func Err(err error) Result {
	return Result{
		Status:      http.StatusInternalServerError,
		IsErr:       true,
		IsJSON:      true,
		InternalMsg: err.Error(),
		Resp: ErrorResponse{
			Message: UnexpectedErrorMessage,
			Error:   err.Error(),
		},
	}
}

// WithHeader returns a copy of r that will also set the given header when
// written.
func (r Result) WithHeader(name, val string) Result {
	erCopy := Result{
		IsErr:       r.IsErr,
		IsJSON:      r.IsJSON,
		Status:      r.Status,
		InternalMsg: r.InternalMsg,
		Resp:        r.Resp,
	}

	erCopy.hdrs = make([][2]string, len(r.hdrs), len(r.hdrs)+1)
	copy(erCopy.hdrs, r.hdrs)
	erCopy.hdrs = append(erCopy.hdrs, [2]string{name, val})
	return erCopy
}

// PrepareMarshaledResponse sets the respJSONBytes to the marshaled version of
// the response if required. If required, and there is a problem marshaling, an
// error is returned. If not required, nil error is always returned.
//
// If PrepareMarshaledResponse has been successfully called at least once for
// r, calling this method again has no effect.
func (r *Result) PrepareMarshaledResponse() error {
	if r.respJSONBytes != nil {
		return nil
	}

	if r.IsJSON && r.Status != http.StatusNoContent {
		var err error
		r.respJSONBytes, err = json.Marshal(r.Resp)
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteResponse writes r to w. PrepareMarshaledResponse must have been called
// on r first if it is a JSON Result whose body could fail to marshal; otherwise
// WriteResponse panics on a marshaling failure.
func (r Result) WriteResponse(w http.ResponseWriter) {
	// if this hasn't been properly created, panic
	if r.Status == 0 {
		panic("result not populated")
	}

	err := r.PrepareMarshaledResponse()
	if err != nil {
		panic(fmt.Sprintf("could not marshal response: %s", err.Error()))
	}

	var respBytes []byte

	if r.IsJSON {
		w.Header().Set("Content-Type", "application/json")
		respBytes = r.respJSONBytes
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if r.Status != http.StatusNoContent {
			respBytes = []byte(fmt.Sprintf("%v", r.Resp))
		}
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")

	for i := range r.hdrs {
		w.Header().Set(r.hdrs[i][0], r.hdrs[i][1])
	}

	w.WriteHeader(r.Status)

	if r.Status != http.StatusNoContent {
		w.Write(respBytes)
	}
}
