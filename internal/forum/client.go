package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a forum API client. It holds no credential of its own; every
// authenticated call takes the bearer token explicitly
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *Metrics
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records every call in m
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new forum API client rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs a JSON request against the API. A non-empty token is sent
// as a bearer credential; a non-2xx status is returned as *APIError
func (c *Client) do(ctx context.Context, op, method, path, token string, body, result any) (err error) {
	start := time.Now()
	defer func() { c.metrics.observe(op, start, err) }()

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("forum request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("request_id", requestID))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// ListPosts fetches the whole post collection in the order the remote
// returns it
func (c *Client) ListPosts(ctx context.Context) ([]*Post, error) {
	var posts []*Post
	if err := c.do(ctx, "list_posts", http.MethodGet, "/blog", "", nil, &posts); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// CreatePost creates a post and returns it with id, author and timestamp
// filled in by the remote
func (c *Client) CreatePost(ctx context.Context, token string, req CreatePostRequest) (*Post, error) {
	var post Post
	if err := c.do(ctx, "create_post", http.MethodPost, "/blog", token, req, &post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &post, nil
}

// ToggleLike flips the caller's like on a post. The remote decides the
// direction and returns the whole updated post
func (c *Client) ToggleLike(ctx context.Context, token, postID string) (*Post, error) {
	path := fmt.Sprintf("/blog/%s/like", url.PathEscape(postID))

	var post Post
	if err := c.do(ctx, "toggle_like", http.MethodPost, path, token, struct{}{}, &post); err != nil {
		return nil, fmt.Errorf("toggle like: %w", err)
	}
	return &post, nil
}

// AddComment appends a comment to a post and returns the whole updated post
func (c *Client) AddComment(ctx context.Context, token, postID, text string) (*Post, error) {
	path := fmt.Sprintf("/blog/%s/comment", url.PathEscape(postID))

	var post Post
	if err := c.do(ctx, "add_comment", http.MethodPost, path, token, commentRequest{Comment: text}, &post); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return &post, nil
}

// GoogleLogin exchanges identity-provider claims for a forum credential
func (c *Client) GoogleLogin(ctx context.Context, req GoogleLoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, "google_login", http.MethodPost, "/auth/google-login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("google login: %w", err)
	}
	return &resp, nil
}
