package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/session"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "forum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	saved, err := db.LoadSession()
	require.NoError(t, err)
	assert.Nil(t, saved)

	loggedIn := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveSession(session.Session{
		Identity:      session.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com", Picture: "pic"},
		Credential:    "tok-1",
		Authenticated: true,
		LoggedInAt:    loggedIn,
	}))

	// a second save replaces the row
	require.NoError(t, db.SaveSession(session.Session{
		Identity:      session.Identity{ID: "u2", Name: "Bob", Email: "bob@example.com"},
		Credential:    "tok-2",
		Authenticated: true,
		LoggedInAt:    loggedIn,
	}))

	saved, err = db.LoadSession()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "u2", saved.Identity.ID)
	assert.Equal(t, "Bob", saved.Identity.Name)
	assert.Equal(t, "tok-2", saved.Credential)
	assert.True(t, saved.Authenticated)
	assert.True(t, saved.LoggedInAt.Equal(loggedIn))

	require.NoError(t, db.ClearSession())
	saved, err = db.LoadSession()
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestStoreRestoresFromDB(t *testing.T) {
	db := openTestDB(t)

	first := session.NewStore(db, nil)
	first.Login(session.Identity{ID: "u1", Name: "Ada"}, "tok")

	second := session.NewStore(db, nil)
	require.True(t, second.Restore())
	token, ok := second.Credential()
	require.True(t, ok)
	assert.Equal(t, "tok", token)

	second.Logout()
	third := session.NewStore(db, nil)
	assert.False(t, third.Restore())
}

func samplePosts() []*forum.Post {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	return []*forum.Post{
		{
			ID:        "p3",
			Title:     "Third",
			Content:   "newest",
			Author:    &forum.Author{ID: "u1", Name: "Ada"},
			CreatedAt: &created,
			Likes:     []string{"u1", "u2"},
			Comments:  []forum.Comment{{Author: &forum.Author{ID: "u2", Username: "bob"}, Text: "hi"}},
		},
		{ID: "p2", Title: "Second", Content: "middle"},
		{ID: "p1", Title: "First", Content: "oldest"},
	}
}

func ids(posts []*forum.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestReplacePostsKeepsOrder(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.ReplacePosts(samplePosts()))

	posts, err := db.ListPosts()
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2", "p1"}, ids(posts))

	got := posts[0]
	assert.Equal(t, "Ada", got.AuthorLabel())
	require.NotNil(t, got.CreatedAt)
	assert.True(t, got.CreatedAt.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"u1", "u2"}, got.Likes)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "bob", got.Comments[0].AuthorLabel())

	// a later replace drops posts the remote no longer returns
	require.NoError(t, db.ReplacePosts([]*forum.Post{{ID: "p1", Title: "First"}}))
	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertPost(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.ReplacePosts(samplePosts()))

	// existing post keeps its place
	require.NoError(t, db.UpsertPost(&forum.Post{ID: "p2", Title: "Second", Likes: []string{"u9"}}))
	// new post goes first
	require.NoError(t, db.UpsertPost(&forum.Post{ID: "p4", Title: "Fourth"}))

	posts, err := db.ListPosts()
	require.NoError(t, err)
	assert.Equal(t, []string{"p4", "p3", "p2", "p1"}, ids(posts))
	assert.Equal(t, []string{"u9"}, posts[2].Likes)

	require.Error(t, db.UpsertPost(&forum.Post{Title: "no id"}))
}

func TestUpsertIntoEmptyCache(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertPost(&forum.Post{ID: "p1", Title: "First"}))
	require.NoError(t, db.UpsertPost(&forum.Post{ID: "p2", Title: "Second"}))

	posts, err := db.ListPosts()
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, ids(posts))
}

func TestGetPost(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.ReplacePosts(samplePosts()))

	p, err := db.GetPost("p2")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Second", p.Title)

	p, err = db.GetPost("missing")
	require.NoError(t, err)
	assert.Nil(t, p)
}
