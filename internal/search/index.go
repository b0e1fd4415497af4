// Package search is a local full-text index over the last-known posts
package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bolterrors "go.etcd.io/bbolt"

	"github.com/renderinc/forumsync/internal/feed"
	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/storage"
)

var _ feed.Cache = (*Index)(nil)

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// IndexedPost is a post as stored in the index
type IndexedPost struct {
	ID        string
	Title     string
	Content   string
	Author    string
	Comments  string // comment texts, one per line
	Likes     int
	CreatedAt time.Time
}

// SearchResult represents a search result
type SearchResult struct {
	ID        string
	Title     string
	Author    string
	Score     float64
	Fragments map[string][]string // Highlighted snippets
}

// DefaultLockTimeout bounds the wait for another process's lock on the index
const DefaultLockTimeout = 2 * time.Second

// ErrIndexBusy is returned when another process holds the on-disk index
var ErrIndexBusy = errors.New("search index is in use by another process")

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	return OpenTimeout(path, DefaultLockTimeout)
}

// OpenTimeout opens or creates a Bleve index, giving up with ErrIndexBusy
// when the index lock is not acquired within timeout
func OpenTimeout(path string, timeout time.Duration) (*Index, error) {
	idx, err := bleve.OpenUsing(path, map[string]interface{}{
		"bolt_timeout": timeout.String(),
	})
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if errors.Is(err, bolterrors.ErrTimeout) {
		return nil, fmt.Errorf("open index %s: %w", path, ErrIndexBusy)
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// OpenMem creates an index that lives only in memory
func OpenMem() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	postMapping := bleve.NewDocumentMapping()
	postMapping.AddFieldMappingsAt("ID", keywordFieldMapping)
	postMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	postMapping.AddFieldMappingsAt("Content", textFieldMapping)
	postMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())
	postMapping.AddFieldMappingsAt("Comments", textFieldMapping)
	postMapping.AddFieldMappingsAt("Likes", bleve.NewNumericFieldMapping())
	postMapping.AddFieldMappingsAt("CreatedAt", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", postMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

func toIndexed(p *forum.Post) *IndexedPost {
	texts := make([]string, 0, len(p.Comments))
	for _, c := range p.Comments {
		texts = append(texts, c.Text)
	}

	doc := &IndexedPost{
		ID:       p.ID,
		Title:    p.Title,
		Content:  p.Content,
		Author:   p.AuthorLabel(),
		Comments: strings.Join(texts, "\n"),
		Likes:    p.LikeCount(),
	}
	if p.CreatedAt != nil {
		doc.CreatedAt = *p.CreatedAt
	}
	return doc
}

// IndexPost adds or updates a post in the index
func (i *Index) IndexPost(p *forum.Post) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("index post: missing id")
	}
	return i.index.Index(p.ID, toIndexed(p))
}

// UpsertPost indexes a post returned by a mutation
func (i *Index) UpsertPost(p *forum.Post) error {
	return i.IndexPost(p)
}

// ReplacePosts makes the index hold exactly posts
func (i *Index) ReplacePosts(posts []*forum.Post) error {
	existing, err := i.ids()
	if err != nil {
		return err
	}

	batch := i.index.NewBatch()
	keep := make(map[string]bool, len(posts))
	for _, p := range posts {
		if p == nil || p.ID == "" {
			continue
		}
		keep[p.ID] = true
		if err := batch.Index(p.ID, toIndexed(p)); err != nil {
			return fmt.Errorf("batch index %s: %w", p.ID, err)
		}
	}
	for _, id := range existing {
		if !keep[id] {
			batch.Delete(id)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// ids lists every document id in the index
func (i *Index) ids() ([]string, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Search performs a search query with fuzzy matching. A blank query
// matches nothing
func (i *Index) Search(queryStr string, limit int) ([]*SearchResult, error) {
	if strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}

	// Query string syntax: quotes, +/- operators, fuzzy ~, field:term
	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")
	search.Fields = []string{"Title", "Author"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var searchResults []*SearchResult
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}

		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if author, ok := hit.Fields["Author"].(string); ok {
			result.Author = author
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// IndexFromStorage rebuilds the index from the cached collection
func (i *Index) IndexFromStorage(db *storage.DB) (int, error) {
	posts, err := db.ListPosts()
	if err != nil {
		return 0, fmt.Errorf("list posts: %w", err)
	}
	if err := i.ReplacePosts(posts); err != nil {
		return 0, err
	}
	return len(posts), nil
}

// Count returns the number of posts in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
