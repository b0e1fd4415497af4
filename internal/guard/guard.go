// Package guard decides whether a view may render for the current session
package guard

import (
	"errors"
	"net/http"
	"strings"

	"github.com/renderinc/forumsync/internal/session"
)

// DefaultLoginPath is where unauthenticated access is sent
const DefaultLoginPath = "/login"

// State is the outcome of evaluating a navigation
type State int

const (
	// Allowed lets the view render
	Allowed State = iota
	// Redirecting sends the navigation to Decision.Target instead
	Redirecting
)

func (s State) String() string {
	switch s {
	case Allowed:
		return "allowed"
	case Redirecting:
		return "redirecting"
	default:
		return "unknown"
	}
}

// Decision is the guard's answer for one navigation
type Decision struct {
	State  State
	Target string // set when Redirecting
}

// Authenticator reports whether a session is active
type Authenticator interface {
	IsAuthenticated() bool
}

// Guard gates protected views. It keeps no memory of past decisions:
// every Evaluate reads the session afresh
type Guard struct {
	auth      Authenticator
	loginPath string
	protected map[string]struct{}
}

// New creates a guard protecting the given view paths
func New(auth Authenticator, loginPath string, protected ...string) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	g := &Guard{
		auth:      auth,
		loginPath: loginPath,
		protected: make(map[string]struct{}, len(protected)),
	}
	for _, p := range protected {
		g.Protect(p)
	}
	return g
}

// Protect marks a view path as requiring a session
func (g *Guard) Protect(path string) {
	g.protected[normalize(path)] = struct{}{}
}

// IsProtected reports whether path requires a session
func (g *Guard) IsProtected(path string) bool {
	_, ok := g.protected[normalize(path)]
	return ok
}

// Evaluate decides a navigation to path
func (g *Guard) Evaluate(path string) Decision {
	if g.IsProtected(path) && !g.auth.IsAuthenticated() {
		return Decision{State: Redirecting, Target: g.loginPath}
	}
	return Decision{State: Allowed}
}

// Require decides a navigation to a view that always needs a session
func (g *Guard) Require() Decision {
	if !g.auth.IsAuthenticated() {
		return Decision{State: Redirecting, Target: g.loginPath}
	}
	return Decision{State: Allowed}
}

// Middleware redirects requests for protected paths to the login view
// when there is no session
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := g.Evaluate(r.URL.Path); d.State == Redirecting {
			http.Redirect(w, r, d.Target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RedirectFor maps an operation error to the login redirect it calls for
// It is the only place where a failed operation turns into navigation
func (g *Guard) RedirectFor(err error) (string, bool) {
	if errors.Is(err, session.ErrLoginRequired) || errors.Is(err, session.ErrCredentialRejected) {
		return g.loginPath, true
	}
	return "", false
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
