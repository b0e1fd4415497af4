package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/renderinc/forumsync/internal/composer"
	"github.com/renderinc/forumsync/internal/forum"
	"github.com/renderinc/forumsync/internal/guard"
	"github.com/renderinc/forumsync/internal/session"
)

type loginView struct {
	Error string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.session.IsAuthenticated() {
		http.Redirect(w, r, "/blog", http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "login.html", "Login", loginView{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	credential := r.FormValue("credential")
	if credential == "" {
		s.render(w, http.StatusBadRequest, "login.html", "Login", loginView{Error: "Missing credential"})
		return
	}

	identity, err := s.session.Exchange(r.Context(), s.exchanger, credential)
	if err != nil {
		s.logger.Warn("Login failed", slog.String("error", err.Error()))
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrLoginFailed) {
			status = http.StatusUnauthorized
		}
		s.render(w, status, "login.html", "Login", loginView{Error: "Login failed. Please try again."})
		return
	}

	s.setFlash("Welcome, " + identity.Name)
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.session.Logout()
	s.composer.Cancel()
	s.feed.CloseDetail()
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type postView struct {
	*forum.Post
	Liked bool
}

type blogView struct {
	Posts   []postView
	Loading bool
	Error   error
	Detail  *forum.Post
	Draft   string
}

func (s *Server) blogData() blogView {
	state := s.feed.State()
	view := blogView{
		Posts:   make([]postView, 0, len(state.Posts)),
		Loading: state.Loading,
		Error:   state.Err,
		Draft:   s.feed.CommentDraft(),
	}
	for _, p := range state.Posts {
		view.Posts = append(view.Posts, postView{Post: p, Liked: s.feed.IsLiked(p)})
	}
	if detail, ok := s.feed.Detail(); ok {
		view.Detail = detail
	}
	return view
}

func (s *Server) handleBlog(w http.ResponseWriter, r *http.Request) {
	// the feed loads when first shown; reload is explicit after that
	if state := s.feed.State(); !state.Loaded && state.Err == nil {
		_ = s.feed.Load(r.Context())
	}
	s.render(w, http.StatusOK, "blog.html", "Blog", s.blogData())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	_ = s.feed.Load(r.Context())
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

func (s *Server) handleOpenComments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.feed.OpenDetail(id); err != nil {
		s.fail(w, r, "Could not open comments", err)
		return
	}
	s.render(w, http.StatusOK, "blog.html", "Blog", s.blogData())
}

func (s *Server) handleCloseComments(w http.ResponseWriter, r *http.Request) {
	s.feed.CloseDetail()
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.feed.ToggleLike(r.Context(), id); err != nil {
		s.fail(w, r, "Could not update like", err)
		return
	}
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// keep the typed text on the open post if the submission fails
	if _, err := s.feed.OpenDetail(id); err != nil {
		s.fail(w, r, "Could not add comment", err)
		return
	}
	s.feed.SetCommentDraft(r.FormValue("comment"))

	if _, err := s.feed.SubmitComment(r.Context()); err != nil {
		s.fail(w, r, "Could not add comment", err)
		return
	}
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

type composeView struct {
	Draft forum.Draft
	Error string
}

func (s *Server) handleComposePage(w http.ResponseWriter, r *http.Request) {
	if err := s.composer.Open(); err != nil {
		s.fail(w, r, "Could not open composer", err)
		return
	}
	s.render(w, http.StatusOK, "compose.html", "Create Post", composeView{Draft: s.composer.Draft()})
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	if err := s.composer.Open(); err != nil {
		s.fail(w, r, "Could not open composer", err)
		return
	}

	s.composer.SetTitle(r.FormValue("title"))
	s.composer.SetContent(r.FormValue("content"))
	s.composer.SetImage(r.FormValue("image"))

	post, err := s.composer.Submit(r.Context())
	if err != nil {
		if target, ok := s.guard.RedirectFor(err); ok {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		status := http.StatusBadGateway
		msg := "Could not create post. Please try again."
		var verr *composer.ValidationError
		if errors.As(err, &verr) {
			status = http.StatusBadRequest
			msg = verr.Error()
		}
		s.render(w, status, "compose.html", "Create Post", composeView{Draft: s.composer.Draft(), Error: msg})
		return
	}

	s.setFlash("Post created: " + post.Title)
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

func (s *Server) handleComposeCancel(w http.ResponseWriter, r *http.Request) {
	s.composer.Cancel()
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if d := s.guard.Require(); d.State == guard.Redirecting {
		http.Redirect(w, r, d.Target, http.StatusFound)
		return
	}
	current := s.session.Current()
	s.render(w, http.StatusOK, "profile.html", "Profile", current)
}
