package middle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/internal/logging"
	"github.com/dekarrin/lectern/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("abcdefghijklmnopqrstuvwxyz012345")

func Test_RequireToken(t *testing.T) {
	goodToken, err := token.Generate(testSecret, "librarian", time.Hour)
	require.NoError(t, err)
	otherToken, err := token.Generate([]byte("zyxwvutsrqponmlkjihgfedcba543210"), "librarian", time.Hour)
	require.NoError(t, err)

	testCases := []struct {
		name          string
		authHeader    string
		expectStatus  int
		expectSubject string
	}{
		{
			name:          "valid token",
			authHeader:    "Bearer " + goodToken,
			expectStatus:  http.StatusOK,
			expectSubject: "librarian",
		},
		{
			name:         "no header",
			expectStatus: http.StatusUnauthorized,
		},
		{
			name:         "not bearer",
			authHeader:   "Basic " + goodToken,
			expectStatus: http.StatusUnauthorized,
		},
		{
			name:         "signed with other secret",
			authHeader:   "Bearer " + otherToken,
			expectStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			var gotSubject string
			var called bool
			next := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				called = true
				gotSubject, _ = GetSubject(req)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/books", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()

			RequireToken(testSecret, logging.NoOpLogger{})(next).ServeHTTP(w, req)

			assert.Equal(tc.expectStatus, w.Code)
			if tc.expectStatus != http.StatusOK {
				assert.False(called)
				assert.NotEmpty(w.Header().Get("WWW-Authenticate"))

				var body lectern.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal("Unauthorized", body.Error)
				return
			}
			assert.True(called)
			assert.Equal(tc.expectSubject, gotSubject)
		})
	}
}

func Test_GetSubject_notChecked(t *testing.T) {
	assert := assert.New(t)

	subject, ok := GetSubject(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(ok)
	assert.Empty(subject)
}

func Test_DontPanic(t *testing.T) {
	testCases := []struct {
		name         string
		next         http.HandlerFunc
		expectStatus int
		expectBody   string
	}{
		{
			name: "no panic",
			next: func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			},
			expectStatus: http.StatusTeapot,
		},
		{
			name: "panic",
			next: func(w http.ResponseWriter, req *http.Request) {
				panic("shelf collapsed")
			},
			expectStatus: http.StatusInternalServerError,
			expectBody:   `{"message":"An unexpected error occurred","error":"panic: shelf collapsed"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			w := httptest.NewRecorder()

			assert.NotPanics(func() {
				DontPanic(logging.NoOpLogger{})(tc.next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			})

			assert.Equal(tc.expectStatus, w.Code)
			if tc.expectBody != "" {
				assert.JSONEq(tc.expectBody, w.Body.String())
			}
		})
	}
}
