// Package feed keeps the local post collection and the open post detail in
// step with the forum API
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/session"
)

var (
	// ErrPostNotFound is returned when a post id is not in the collection
	ErrPostNotFound = errors.New("post not found")
	// ErrNoDetail is returned when an operation needs an open post detail
	ErrNoDetail = errors.New("no post detail open")
)

// Remote is the part of the forum API the synchronizer drives
type Remote interface {
	ListPosts(ctx context.Context) ([]*forum.Post, error)
	CreatePost(ctx context.Context, token string, req forum.CreatePostRequest) (*forum.Post, error)
	ToggleLike(ctx context.Context, token, postID string) (*forum.Post, error)
	AddComment(ctx context.Context, token, postID, text string) (*forum.Post, error)
}

// Cache receives every collection write after it is applied. Failures are
// logged and never fail the operation
type Cache interface {
	ReplacePosts(posts []*forum.Post) error
	UpsertPost(post *forum.Post) error
}

// State is a snapshot of the collection for rendering
type State struct {
	Posts   []*forum.Post
	Loading bool
	Loaded  bool
	Err     error // last load failure, cleared by a successful load
}

// Synchronizer owns the post collection and the detail mirror. Remote
// calls run without the lock held, so operations may overlap; each result
// is applied whole when it arrives and the last one to land wins
type Synchronizer struct {
	remote  Remote
	session *session.Store
	caches  []Cache
	logger  *slog.Logger

	mu      sync.RWMutex
	posts   []*forum.Post
	loading int
	loaded  bool
	loadErr error
	mirror  Mirror

	// held across cache writes so caches see collection writes in order
	cacheMu sync.Mutex
}

// NewSynchronizer creates a synchronizer with an empty collection
func NewSynchronizer(remote Remote, sess *session.Store, logger *slog.Logger, caches ...Cache) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		remote:  remote,
		session: sess,
		caches:  caches,
		logger:  logger,
	}
}

// Seed primes the collection with last-known posts, e.g. from a local
// cache. It does not count as a load and does not write to the caches
func (s *Synchronizer) Seed(posts []*forum.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = compact(posts)
	s.mirror.refresh(s.posts)
}

// Load fetches the whole collection and replaces the local one, keeping
// the remote's order. On failure the last-known collection stays and the
// error is kept in State until the next successful load
func (s *Synchronizer) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()

	start := time.Now()
	posts, err := s.remote.ListPosts(ctx)

	s.mu.Lock()
	s.loading--
	if err != nil {
		s.loadErr = err
		s.mu.Unlock()
		s.logger.Warn("Failed to load posts", slog.String("error", err.Error()))
		return fmt.Errorf("load posts: %w", err)
	}

	s.posts = compact(posts)
	s.loaded = true
	s.loadErr = nil
	s.mirror.refresh(s.posts)
	snapshot := slices.Clone(s.posts)
	s.cacheMu.Lock()
	s.mu.Unlock()

	s.writeCaches(func(c Cache) error { return c.ReplacePosts(snapshot) })
	s.cacheMu.Unlock()

	s.logger.Info("Loaded posts",
		slog.Int("count", len(snapshot)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// ToggleLike asks the remote to flip the signed-in user's like on a post
// and applies the post it returns. Nothing changes locally before the
// remote answers
func (s *Synchronizer) ToggleLike(ctx context.Context, postID string) (*forum.Post, error) {
	token, ok := s.session.Credential()
	if !ok {
		return nil, fmt.Errorf("toggle like: %w", session.ErrLoginRequired)
	}

	post, err := s.remote.ToggleLike(ctx, token, postID)
	if err != nil {
		return nil, s.mutationError("toggle like", postID, token, err)
	}
	if post == nil {
		return nil, errors.New("toggle like: remote returned no post")
	}

	s.apply(postID, post, false)
	return post, nil
}

// AddComment posts text as a comment and applies the post the remote
// returns. Blank text is a no-op and returns a nil post
func (s *Synchronizer) AddComment(ctx context.Context, postID, text string) (*forum.Post, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	token, ok := s.session.Credential()
	if !ok {
		return nil, fmt.Errorf("add comment: %w", session.ErrLoginRequired)
	}

	post, err := s.remote.AddComment(ctx, token, postID, text)
	if err != nil {
		return nil, s.mutationError("add comment", postID, token, err)
	}
	if post == nil {
		return nil, errors.New("add comment: remote returned no post")
	}

	s.apply(postID, post, true)
	return post, nil
}

// SubmitComment adds the pending comment draft to the open post
func (s *Synchronizer) SubmitComment(ctx context.Context) (*forum.Post, error) {
	s.mu.RLock()
	postID, text := s.mirror.openID(), s.mirror.draft
	s.mu.RUnlock()

	if postID == "" {
		return nil, fmt.Errorf("add comment: %w", ErrNoDetail)
	}
	return s.AddComment(ctx, postID, text)
}

// CreatePost sends draft on behalf of the signed-in user and puts the
// created post first in the collection. A blank image is replaced by the
// placeholder. On failure the collection is unchanged
func (s *Synchronizer) CreatePost(ctx context.Context, draft forum.Draft) (*forum.Post, error) {
	current := s.session.Current()
	if !current.Authenticated {
		return nil, fmt.Errorf("create post: %w", session.ErrLoginRequired)
	}

	image := strings.TrimSpace(draft.Image)
	if image == "" {
		image = forum.PlaceholderImage
	}

	post, err := s.remote.CreatePost(ctx, current.Credential, forum.CreatePostRequest{
		Title:   draft.Title,
		Content: draft.Content,
		Image:   image,
		Author:  current.Identity.ID,
	})
	if err != nil {
		return nil, s.mutationError("create post", "", current.Credential, err)
	}
	if post == nil || post.ID == "" {
		return nil, errors.New("create post: remote returned no post id")
	}

	s.mu.Lock()
	s.posts = slices.DeleteFunc(s.posts, func(p *forum.Post) bool { return p.ID == post.ID })
	s.posts = slices.Insert(s.posts, 0, post)
	s.mirror.reconcile(post)
	s.cacheMu.Lock()
	s.mu.Unlock()

	s.writeCaches(func(c Cache) error { return c.UpsertPost(post) })
	s.cacheMu.Unlock()

	s.logger.Info("Created post", slog.String("post_id", post.ID), slog.String("title", post.Title))
	return post, nil
}

// apply writes a post returned by a mutation into the collection, in
// place, and into the mirror when it is the open post. Both writes use
// the same entity
func (s *Synchronizer) apply(requestedID string, post *forum.Post, clearDraft bool) {
	if post.ID == "" {
		post.ID = requestedID
	}

	s.mu.Lock()
	replaced := false
	if i := s.indexOf(post.ID); i >= 0 {
		s.posts[i] = post
		replaced = true
	}
	mirrored := s.mirror.reconcile(post)
	if clearDraft {
		s.mirror.draft = ""
	}
	s.cacheMu.Lock()
	s.mu.Unlock()

	if replaced {
		s.writeCaches(func(c Cache) error { return c.UpsertPost(post) })
	}
	s.cacheMu.Unlock()

	s.logger.Debug("Applied post",
		slog.String("post_id", post.ID),
		slog.Bool("in_collection", replaced),
		slog.Bool("mirrored", mirrored),
		slog.Int("likes", post.LikeCount()),
		slog.Int("comments", post.CommentCount()))
}

// mutationError turns a 401 into a session logout plus
// ErrCredentialRejected; anything else is passed on with state untouched
func (s *Synchronizer) mutationError(op, postID, token string, err error) error {
	if errors.Is(err, forum.ErrUnauthorized) {
		s.session.Invalidate(token)
		s.logger.Warn("Credential rejected",
			slog.String("op", op),
			slog.String("post_id", postID))
		return fmt.Errorf("%s: %w: %w", op, session.ErrCredentialRejected, err)
	}

	s.logger.Warn("Mutation failed",
		slog.String("op", op),
		slog.String("post_id", postID),
		slog.String("error", err.Error()))
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Synchronizer) writeCaches(write func(Cache) error) {
	for _, c := range s.caches {
		if err := write(c); err != nil {
			s.logger.Warn("Failed to update cache", slog.String("error", err.Error()))
		}
	}
}

// indexOf must be called with mu held
func (s *Synchronizer) indexOf(postID string) int {
	return slices.IndexFunc(s.posts, func(p *forum.Post) bool { return p.ID == postID })
}

// Posts returns the collection in display order
func (s *Synchronizer) Posts() []*forum.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.posts)
}

// Post looks up a post in the collection
func (s *Synchronizer) Post(postID string) (*forum.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(postID); i >= 0 {
		return s.posts[i], true
	}
	return nil, false
}

// State returns a snapshot for rendering
func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Posts:   slices.Clone(s.posts),
		Loading: s.loading > 0,
		Loaded:  s.loaded,
		Err:     s.loadErr,
	}
}

// IsLiked reports whether the signed-in user likes p
func (s *Synchronizer) IsLiked(p *forum.Post) bool {
	identity, ok := s.session.Identity()
	return ok && p.LikedBy(identity.ID)
}

// OpenDetail opens the detail mirror on a post from the collection
func (s *Synchronizer) OpenDetail(postID string) (*forum.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(postID)
	if i < 0 {
		return nil, fmt.Errorf("open detail %s: %w", postID, ErrPostNotFound)
	}
	if s.mirror.openID() != postID {
		s.mirror.draft = ""
	}
	s.mirror.open(s.posts[i])
	return s.posts[i], nil
}

// CloseDetail closes the detail mirror and drops the pending comment
func (s *Synchronizer) CloseDetail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror.close()
}

// Detail returns the open post, if any
func (s *Synchronizer) Detail() (*forum.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror.post, s.mirror.post != nil
}

// SetCommentDraft stages comment text for the open post
func (s *Synchronizer) SetCommentDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror.draft = text
}

// CommentDraft returns the staged comment text
func (s *Synchronizer) CommentDraft() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror.draft
}

func compact(posts []*forum.Post) []*forum.Post {
	out := make([]*forum.Post, 0, len(posts))
	for _, p := range posts {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
