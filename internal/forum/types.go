package forum

import (
	"encoding/json"
	"time"
)

// Author is the user attached to a post or comment
type Author struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// UnmarshalJSON accepts a populated author object or a bare user id
func (a *Author) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*a = Author{ID: id}
		return nil
	}

	type alias Author
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = aux.MongoID
	}
	return nil
}

// Comment is a single entry in a post's comment thread
type Comment struct {
	Author *Author    `json:"author,omitempty"`
	Text   string     `json:"text"`
	Date   *time.Time `json:"date,omitempty"` // nil if the remote sent none
}

// UnmarshalJSON reads the comment author from either "author" or "user"
func (c *Comment) UnmarshalJSON(data []byte) error {
	type alias Comment
	aux := struct {
		*alias
		User *Author `json:"user"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if c.Author == nil {
		c.Author = aux.User
	}
	return nil
}

// Post is a forum post as returned by the remote. Likes and comment order
// are only ever taken from a remote response
type Post struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Image     string     `json:"image,omitempty"`
	Author    *Author    `json:"author,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Likes     []string   `json:"likes"`
	Comments  []Comment  `json:"comments"`
}

// UnmarshalJSON accepts the document id under "_id" as well as "id"
func (p *Post) UnmarshalJSON(data []byte) error {
	type alias Post
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.MongoID
	}
	return nil
}

// Draft is a post being composed, before the remote assigns it an id
type Draft struct {
	Title   string
	Content string
	Image   string
}

// CreatePostRequest is the body of POST /blog
type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   string `json:"image"`
	Author  string `json:"author"`
}

// commentRequest is the body of POST /blog/{id}/comment
type commentRequest struct {
	Comment string `json:"comment"`
}

// GoogleLoginRequest is the body of POST /auth/google-login
type GoogleLoginRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	GoogleID string `json:"googleId"`
	Picture  string `json:"picture"`
}

// User is the account returned by a successful login exchange
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnmarshalJSON accepts the account id under "_id" as well as "id"
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = aux.MongoID
	}
	return nil
}

// LoginResponse is the reply to POST /auth/google-login
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    User   `json:"user"`
	Message string `json:"message,omitempty"`
}
