package feed

import "github.com/renderinc/forumsync/internal/forum"

// Mirror is the open post detail (the comments dialog). It points at the
// same *forum.Post the collection holds and is only written by the
// Synchronizer, under its lock
type Mirror struct {
	post  *forum.Post
	draft string
}

func (m *Mirror) open(p *forum.Post) {
	m.post = p
}

func (m *Mirror) close() {
	m.post = nil
	m.draft = ""
}

// reconcile swaps in p when it is the open post
func (m *Mirror) reconcile(p *forum.Post) bool {
	if m.post == nil || m.post.ID != p.ID {
		return false
	}
	m.post = p
	return true
}

// refresh re-points the mirror after the collection was replaced; it
// closes when the open post is no longer in the collection
func (m *Mirror) refresh(posts []*forum.Post) {
	if m.post == nil {
		return
	}
	for _, p := range posts {
		if p.ID == m.post.ID {
			m.post = p
			return
		}
	}
	m.close()
}

func (m *Mirror) openID() string {
	if m.post == nil {
		return ""
	}
	return m.post.ID
}
