package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/renderinc/forumsync/internal/feed"
	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/search"
	"github.com/renderinc/forumsync/internal/session"
)

func printIdentity(w io.Writer, s session.Session) {
	fmt.Fprintf(w, "Name:      %s\n", s.Identity.Name)
	fmt.Fprintf(w, "Email:     %s\n", s.Identity.Email)
	fmt.Fprintf(w, "User ID:   %s\n", s.Identity.ID)
	if !s.LoggedInAt.IsZero() {
		fmt.Fprintf(w, "Signed in: %s\n", s.LoggedInAt.Local().Format("January 2, 2006, 03:04 PM"))
	}
}

func printFeed(w io.Writer, sync *feed.Synchronizer) {
	posts := sync.Posts()
	if len(posts) == 0 {
		fmt.Fprintln(w, "No posts yet")
		return
	}

	for i, p := range posts {
		like := "♡"
		if sync.IsLiked(p) {
			like = "♥"
		}
		fmt.Fprintf(w, "%d. %s  [%s]\n", i+1, p.Title, p.ID)
		fmt.Fprintf(w, "   By %s · %s · %s %d · 💬 %d\n",
			p.AuthorLabel(), p.DateLabel(), like, p.LikeCount(), p.CommentCount())
	}
}

func printDetail(w io.Writer, p *forum.Post, liked bool) {
	like := "♡"
	if liked {
		like = "♥"
	}

	fmt.Fprintf(w, "%s\n", p.Title)
	fmt.Fprintf(w, "By %s · %s\n", p.AuthorLabel(), p.DateLabel())
	fmt.Fprintf(w, "Image: %s\n\n", p.ImageRef())
	fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(p.Content))
	fmt.Fprintf(w, "%s %d likes\n\n", like, p.LikeCount())

	fmt.Fprintf(w, "Comments (%d)\n", p.CommentCount())
	if p.CommentCount() == 0 {
		fmt.Fprintln(w, "  No comments yet")
		return
	}
	for i := range p.Comments {
		c := &p.Comments[i]
		fmt.Fprintf(w, "  %s · %s\n", c.AuthorLabel(), c.DateLabel())
		fmt.Fprintf(w, "    %s\n", c.Text)
	}
}

func printResults(w io.Writer, results []*search.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found")
		return
	}

	fmt.Fprintf(w, "Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s  [%s]\n", i+1, r.Title, r.ID)
		if r.Author != "" {
			fmt.Fprintf(w, "   Author: %s\n", r.Author)
		}
		fmt.Fprintf(w, "   Score: %.3f\n", r.Score)
		if snippets, ok := r.Fragments["Content"]; ok && len(snippets) > 0 {
			fmt.Fprintf(w, "   Preview: %s\n", snippets[0])
		}
		fmt.Fprintln(w)
	}
}
