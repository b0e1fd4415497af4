package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/renderinc/forumsync/internal/feed"
	"github.com/renderinc/forumsync/internal/forum"
)

var _ feed.Cache = (*DB)(nil)

// ReplacePosts swaps the cached collection for posts, keeping their order
func (d *DB) ReplacePosts(posts []*forum.Post) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM posts"); err != nil {
		return fmt.Errorf("clear posts: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO posts (id, position, title, author_name, payload, cached_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, p := range posts {
		if p == nil || p.ID == "" {
			continue
		}
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode post %s: %w", p.ID, err)
		}
		if _, err := stmt.Exec(p.ID, i, p.Title, p.AuthorLabel(), string(payload), now); err != nil {
			return fmt.Errorf("insert post %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertPost stores p. A post already cached keeps its position; a new one
// goes first
func (d *DB) UpsertPost(p *forum.Post) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("upsert post: missing id")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode post %s: %w", p.ID, err)
	}

	query := `
	INSERT INTO posts (id, position, title, author_name, payload, cached_at)
	VALUES (?, (SELECT COALESCE(MIN(position), 0) - 1 FROM posts), ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		author_name = excluded.author_name,
		payload = excluded.payload,
		cached_at = excluded.cached_at
	`

	_, err = d.db.Exec(query, p.ID, p.Title, p.AuthorLabel(), string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.ID, err)
	}
	return nil
}

// ListPosts returns the cached collection in display order
func (d *DB) ListPosts() ([]*forum.Post, error) {
	rows, err := d.db.Query("SELECT payload FROM posts ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*forum.Post
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		p := &forum.Post{}
		if err := json.Unmarshal([]byte(payload), p); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, p)
	}

	return posts, rows.Err()
}

// GetPost returns a cached post, or nil if it is not cached
func (d *DB) GetPost(id string) (*forum.Post, error) {
	var payload string
	err := d.db.QueryRow("SELECT payload FROM posts WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}

	p := &forum.Post{}
	if err := json.Unmarshal([]byte(payload), p); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", id, err)
	}
	return p, nil
}

// Count returns the number of cached posts
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count)
	return count, err
}
