package lectern

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Result_WriteResponse(t *testing.T) {
	testCases := []struct {
		name         string
		result       Result
		expectStatus int
		expectBody   string
		expectHdrs   map[string]string
	}{
		{
			name:         "ok",
			result:       OK(map[string]int{"isbn": 12}),
			expectStatus: http.StatusOK,
			expectBody:   `{"isbn":12}`,
		},
		{
			name:         "created",
			result:       Created(Book{ISBN: 12, Title: "Dune"}, "created book %d", 12),
			expectStatus: http.StatusCreated,
			expectBody:   `{"isbn":12,"title":"Dune","phone_no":0}`,
		},
		{
			name:         "unexpected error",
			result:       Err(NewError("create book", ErrConnector)),
			expectStatus: http.StatusInternalServerError,
			expectBody:   `{"message":"An unexpected error occurred","error":"create book: an error occurred in the store connector"}`,
		},
		{
			name:         "not found",
			result:       NotFound(),
			expectStatus: http.StatusNotFound,
			expectBody:   `{"message":"The requested resource was not found","error":"Not Found"}`,
		},
		{
			name:         "unauthorized",
			result:       Unauthorized("", "no token"),
			expectStatus: http.StatusUnauthorized,
			expectBody:   `{"message":"You are not authorized to do that","error":"Unauthorized"}`,
			expectHdrs: map[string]string{
				"WWW-Authenticate": `Bearer realm="lectern", charset="utf-8"`,
			},
		},
		{
			name:         "extra header",
			result:       OK("pong").WithHeader("X-Request-Id", "abc"),
			expectStatus: http.StatusOK,
			expectBody:   `"pong"`,
			expectHdrs: map[string]string{
				"X-Request-Id": "abc",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			w := httptest.NewRecorder()

			tc.result.WriteResponse(w)

			assert.Equal(tc.expectStatus, w.Code)
			assert.JSONEq(tc.expectBody, w.Body.String())
			assert.Equal("application/json", w.Header().Get("Content-Type"))
			assert.Equal("nosniff", w.Header().Get("X-Content-Type-Options"))
			for k, v := range tc.expectHdrs {
				assert.Equal(v, w.Header().Get(k))
			}
		})
	}
}

func Test_Result_InternalMsg(t *testing.T) {
	testCases := []struct {
		name   string
		result Result
		expect string
	}{
		{name: "default ok", result: OK(nil), expect: "OK"},
		{name: "format", result: OK(nil, "got %d books", 3), expect: "got 3 books"},
		{name: "not a format", result: OK(nil, 3, "books"), expect: "3books"},
		{name: "default failure", result: NotFound(), expect: "not found"},
		{name: "error", result: Err(errors.New("disk full")), expect: "disk full"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.result.InternalMsg)
		})
	}
}

func Test_Result_WriteResponse_panicsWhenEmpty(t *testing.T) {
	assert.Panics(t, func() {
		Result{}.WriteResponse(httptest.NewRecorder())
	})
}

func Test_Result_PrepareMarshaledResponse(t *testing.T) {
	assert := assert.New(t)

	r := OK(make(chan int))

	assert.Error(r.PrepareMarshaledResponse())
	assert.Panics(func() { r.WriteResponse(httptest.NewRecorder()) })
}
