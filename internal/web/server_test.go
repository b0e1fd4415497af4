package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/forumsync/internal/composer"
	"github.com/renderinc/forumsync/internal/feed"
	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/search"
	"github.com/renderinc/forumsync/internal/session"
)

// fakeAPI is an in-memory forum API accepting a single token
type fakeAPI struct {
	mu        sync.Mutex
	posts     []*forum.Post
	token     string
	mutations int
	nextID    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		token: "tok",
		posts: []*forum.Post{
			{ID: "p2", Title: "Jazz standards", Content: "Autumn Leaves", Author: &forum.Author{ID: "u2", Name: "Bob"}, Likes: []string{"u2"}},
			{ID: "p1", Title: "Favourite riffs", Content: "Smoke on the water", Author: &forum.Author{ID: "u3"}},
		},
	}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /blog", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.posts)
	})
	mux.HandleFunc("POST /auth/google-login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"success":true,"token":%q,"user":{"_id":"u1","name":"Ada","email":"ada@example.com"}}`, f.token)
	})
	mux.HandleFunc("POST /blog", f.authed(func(w http.ResponseWriter, r *http.Request) {
		var req forum.CreatePostRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.nextID++
		p := &forum.Post{
			ID:      fmt.Sprintf("new-%d", f.nextID),
			Title:   req.Title,
			Content: req.Content,
			Image:   req.Image,
			Author:  &forum.Author{ID: req.Author, Name: "Ada"},
		}
		f.posts = append([]*forum.Post{p}, f.posts...)
		_ = json.NewEncoder(w).Encode(p)
	}))
	mux.HandleFunc("POST /blog/{id}/like", f.authed(func(w http.ResponseWriter, r *http.Request) {
		p := f.find(r.PathValue("id"))
		if p == nil {
			http.NotFound(w, r)
			return
		}
		cp := *p
		cp.Likes = nil
		liked := false
		for _, id := range p.Likes {
			if id == "u1" {
				liked = true
				continue
			}
			cp.Likes = append(cp.Likes, id)
		}
		if !liked {
			cp.Likes = append(cp.Likes, "u1")
		}
		f.replace(&cp)
		_ = json.NewEncoder(w).Encode(&cp)
	}))
	mux.HandleFunc("POST /blog/{id}/comment", f.authed(func(w http.ResponseWriter, r *http.Request) {
		p := f.find(r.PathValue("id"))
		if p == nil {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Comment string `json:"comment"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		cp := *p
		cp.Comments = append(append([]forum.Comment(nil), p.Comments...), forum.Comment{
			Author: &forum.Author{ID: "u1", Name: "Ada"},
			Text:   body.Comment,
		})
		f.replace(&cp)
		_ = json.NewEncoder(w).Encode(&cp)
	}))
	return mux
}

// authed runs next under the lock when the bearer token is accepted
func (f *fakeAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.mutations++
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakeAPI) find(id string) *forum.Post {
	for _, p := range f.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (f *fakeAPI) replace(p *forum.Post) {
	for i := range f.posts {
		if f.posts[i].ID == p.ID {
			f.posts[i] = p
		}
	}
}

func (f *fakeAPI) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

func (f *fakeAPI) rotateToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

type testEnv struct {
	api     *fakeAPI
	session *session.Store
	feed    *feed.Synchronizer
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	api := newFakeAPI()
	remote := httptest.NewServer(api.handler())
	t.Cleanup(remote.Close)

	reg := prometheus.NewRegistry()
	client := forum.NewClient(remote.URL, forum.WithMetrics(forum.NewMetrics(reg)))

	idx, err := search.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	sess := session.NewStore(nil, nil)
	fs := feed.NewSynchronizer(client, sess, nil, idx)

	srv, err := NewServer(Options{
		Session:   sess,
		Feed:      fs,
		Composer:  composer.New(fs, sess),
		Exchanger: client,
		Index:     idx,
		Gatherer:  reg,
	})
	require.NoError(t, err)

	return &testEnv{api: api, session: sess, feed: fs, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func assertion(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, session.Claims{
		Email:            "ada@example.com",
		Name:             "Ada",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "google-1"},
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/login", url.Values{"credential": {assertion(t)}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.True(t, e.session.IsAuthenticated())
}

func TestRedirects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		target string
	}{
		{name: "root", method: http.MethodGet, path: "/", target: "/blog"},
		{name: "unknown view", method: http.MethodGet, path: "/nowhere", target: "/blog"},
		{name: "profile without session", method: http.MethodGet, path: "/profile", target: "/login"},
		{name: "composer without session", method: http.MethodGet, path: "/compose", target: "/login"},
		{name: "like without session", method: http.MethodPost, path: "/blog/p1/like", target: "/login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, nil)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.target, rec.Header().Get("Location"))
		})
	}

	assert.Zero(t, env.api.mutationCount())
}

func TestBlogRendersFeed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/blog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Less(t, strings.Index(body, "Jazz standards"), strings.Index(body, "Favourite riffs"))
	assert.Contains(t, body, "By Bob")
	assert.Contains(t, body, "By "+forum.AnonymousLabel)
	assert.Contains(t, body, "Login to create a post")
	assert.True(t, env.feed.State().Loaded)
}

func TestLoginThenLikeAndComment(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusFound, rec.Code)

	env.do(t, http.MethodGet, "/blog", nil)
	rec = env.do(t, http.MethodGet, "/blog/p1/comments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No comments yet.")

	rec = env.do(t, http.MethodPost, "/blog/p1/like", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	p, ok := env.feed.Post("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"u1"}, p.Likes)
	detail, ok := env.feed.Detail()
	require.True(t, ok)
	assert.Same(t, p, detail)

	rec = env.do(t, http.MethodPost, "/blog/p1/comment", url.Values{"comment": {"great riff"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.do(t, http.MethodGet, "/blog", nil)
	body := rec.Body.String()
	assert.Contains(t, body, "great riff")
	assert.Contains(t, body, "Create Post")
	assert.Empty(t, env.feed.CommentDraft())
}

func TestCommentOpensPostDetail(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, http.MethodGet, "/blog", nil)

	rec := env.do(t, http.MethodPost, "/blog/p2/comment", url.Values{"comment": {"nice voicings"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	detail, ok := env.feed.Detail()
	require.True(t, ok)
	assert.Equal(t, "p2", detail.ID)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "nice voicings", detail.Comments[0].Text)
	assert.Empty(t, env.feed.CommentDraft())
}

func TestCommentOnUnknownPost(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, http.MethodGet, "/blog", nil)

	rec := env.do(t, http.MethodPost, "/blog/missing/comment", url.Values{"comment": {"hello"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/blog", rec.Header().Get("Location"))
	assert.Zero(t, env.api.mutationCount())

	rec = env.do(t, http.MethodGet, "/blog", nil)
	assert.Contains(t, rec.Body.String(), "Could not add comment")
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodGet, "/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ada@example.com")

	env.session.Logout()
	rec = env.do(t, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRejectedCredentialLogsOut(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, http.MethodGet, "/blog", nil)

	env.api.rotateToken("other")

	rec := env.do(t, http.MethodPost, "/blog/p1/like", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, env.session.IsAuthenticated())

	p, ok := env.feed.Post("p1")
	require.True(t, ok)
	assert.Empty(t, p.Likes)
}

func TestComposeValidationKeepsDraft(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodGet, "/compose", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/compose", url.Values{"title": {"Only a title"}, "content": {"   "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "content is required")
	assert.Contains(t, rec.Body.String(), "Only a title")
	assert.Zero(t, env.api.mutationCount())
}

func TestComposePrependsPost(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.do(t, http.MethodGet, "/blog", nil)

	rec := env.do(t, http.MethodPost, "/compose", url.Values{"title": {"New song"}, "content": {"Lyrics"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/blog", rec.Header().Get("Location"))

	posts := env.feed.Posts()
	require.Len(t, posts, 3)
	assert.Equal(t, "New song", posts[0].Title)
	assert.Equal(t, forum.PlaceholderImage, posts[0].Image)

	rec = env.do(t, http.MethodGet, "/blog", nil)
	assert.Contains(t, rec.Body.String(), "Post created: New song")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, env.session.IsAuthenticated())
}

func TestSearchAPI(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/blog", nil)

	rec := env.do(t, http.MethodGet, "/api/search?q=jazz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "p2", resp.Results[0].ID)

	rec = env.do(t, http.MethodGet, "/api/search?q=", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Zero(t, resp.Count)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/blog", nil)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(2), health["posts"])
	assert.Equal(t, float64(2), health["posts_in_index"])

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `forum_client_requests_total{operation="list_posts",outcome="ok"} 1`)
}
