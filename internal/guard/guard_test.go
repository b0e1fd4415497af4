package guard

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renderinc/forumsync/internal/session"
)

func TestEvaluate(t *testing.T) {
	store := session.NewStore(nil, nil)
	g := New(store, "", "/profile", "/compose/")

	tests := []struct {
		name   string
		login  bool
		path   string
		want   State
		target string
	}{
		{name: "public view anonymous", path: "/blog", want: Allowed},
		{name: "protected view anonymous", path: "/profile", want: Redirecting, target: "/login"},
		{name: "trailing slash", path: "/profile/", want: Redirecting, target: "/login"},
		{name: "registered with slash", path: "/compose", want: Redirecting, target: "/login"},
		{name: "protected view signed in", login: true, path: "/profile", want: Allowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.Logout()
			if tt.login {
				store.Login(session.Identity{ID: "u1"}, "tok")
			}

			d := g.Evaluate(tt.path)
			assert.Equal(t, tt.want, d.State)
			assert.Equal(t, tt.target, d.Target)
		})
	}
}

func TestEvaluateIsNotCached(t *testing.T) {
	store := session.NewStore(nil, nil)
	g := New(store, "/signin", "/profile")

	store.Login(session.Identity{ID: "u1"}, "tok")
	assert.Equal(t, Allowed, g.Evaluate("/profile").State)

	store.Logout()
	assert.Equal(t, Decision{State: Redirecting, Target: "/signin"}, g.Evaluate("/profile"))
}

func TestMiddleware(t *testing.T) {
	store := session.NewStore(nil, nil)
	g := New(store, "", "/profile")

	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blog", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	store.Login(session.Identity{ID: "u1"}, "tok")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedirectFor(t *testing.T) {
	g := New(session.NewStore(nil, nil), "")

	target, ok := g.RedirectFor(fmt.Errorf("toggle like: %w", session.ErrLoginRequired))
	assert.True(t, ok)
	assert.Equal(t, "/login", target)

	_, ok = g.RedirectFor(fmt.Errorf("add comment: %w", session.ErrCredentialRejected))
	assert.True(t, ok)

	_, ok = g.RedirectFor(errors.New("HTTP 500"))
	assert.False(t, ok)

	_, ok = g.RedirectFor(nil)
	assert.False(t, ok)
}

func TestRequire(t *testing.T) {
	store := session.NewStore(nil, nil)
	g := New(store, "")

	assert.Equal(t, Redirecting, g.Require().State)
	store.Login(session.Identity{ID: "u1"}, "tok")
	assert.Equal(t, Allowed, g.Require().State)
}
