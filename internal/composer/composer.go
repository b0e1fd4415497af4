// Package composer stages a new post until it is handed to the feed
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/session"
)

var (
	// ErrValidation matches every *ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrClosed is returned when submitting while the composer is closed
	ErrClosed = errors.New("composer is not open")
)

// ValidationError names the required field that was left empty
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Creator publishes a finished draft
type Creator interface {
	CreatePost(ctx context.Context, draft forum.Draft) (*forum.Post, error)
}

// Authenticator reports whether a session is active
type Authenticator interface {
	IsAuthenticated() bool
}

// Composer owns one draft at a time
type Composer struct {
	creator Creator
	auth    Authenticator

	mu    sync.Mutex
	open  bool
	draft forum.Draft
}

// New creates a closed composer
func New(creator Creator, auth Authenticator) *Composer {
	return &Composer{creator: creator, auth: auth}
}

// Open shows the composer with an empty draft. Without a session it
// returns session.ErrLoginRequired and stays closed
func (c *Composer) Open() error {
	if !c.auth.IsAuthenticated() {
		return fmt.Errorf("open composer: %w", session.ErrLoginRequired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		c.open = true
		c.draft = forum.Draft{}
	}
	return nil
}

// IsOpen reports whether the composer is showing
func (c *Composer) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Draft returns the staged draft
func (c *Composer) Draft() forum.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Update replaces the staged draft
func (c *Composer) Update(d forum.Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = d
}

func (c *Composer) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Title = title
}

func (c *Composer) SetContent(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Content = content
}

func (c *Composer) SetImage(image string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Image = image
}

// Cancel discards the draft and closes the composer
func (c *Composer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.draft = forum.Draft{}
}

// Submit validates the draft and hands it to the creator. On any failure
// the draft is kept for correction; on success it is discarded and the
// composer closes
func (c *Composer) Submit(ctx context.Context) (*forum.Post, error) {
	c.mu.Lock()
	open, draft := c.open, c.draft
	c.mu.Unlock()

	if !open {
		return nil, ErrClosed
	}
	if err := Validate(draft); err != nil {
		return nil, err
	}

	post, err := c.creator.CreatePost(ctx, draft)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// edits made while the request was in flight belong to a new draft
	if c.draft == draft {
		c.draft = forum.Draft{}
		c.open = false
	}
	c.mu.Unlock()

	return post, nil
}

// Validate checks the required fields of a draft
func Validate(d forum.Draft) error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title"}
	}
	if strings.TrimSpace(d.Content) == "" {
		return &ValidationError{Field: "content"}
	}
	return nil
}
