package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acrispino/go-converse/internal/testutil"
	"github.com/acrispino/go-converse/internal/types"
)

func TestAuthMiddleware(t *testing.T) {
	s := &ConverseApp{
		log:        testutil.TestLogger(t),
		signingKey: []byte("test-signing-key"),
	}

	t.Run("valid token passes user id to handler", func(t *testing.T) {
		token, err := s.createJwtForSession(types.User{Id: 42}, time.Hour)
		assert.NoError(t, err, "expected no error creating token")

		var gotUserId int
		handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			gotUserId, _ = UserId(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(createJwtCookie(token, time.Hour))
		rr := httptest.NewRecorder()

		handler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected request to pass through")
		assert.Equal(t, 42, gotUserId, "expected user id from token in context")
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store", "expected cache control header")
	})

	t.Run("missing cookie is unauthorized", func(t *testing.T) {
		handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Error("expected handler to not be called")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		rr := httptest.NewRecorder()

		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 without cookie")
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Error("expected handler to not be called")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(createJwtCookie("bogus", time.Hour))
		rr := httptest.NewRecorder()

		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 for invalid token")
	})
}

func TestErrorHandler(t *testing.T) {
	s := &ConverseApp{log: testutil.TestLogger(t)}

	t.Run("passes through normal requests", func(t *testing.T) {
		handler := s.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusTeapot, rr.Code, "expected handler response to pass through")
	})

	t.Run("recovers from panics", func(t *testing.T) {
		handler := s.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected 500 after panic")
		assert.Equal(t, "close", rr.Header().Get("Connection"), "expected connection close header")
	})
}
