package forum

import "slices"

// Fallbacks rendered when the remote omits a field
const (
	PlaceholderImage = "https://via.placeholder.com/400x200?text=No+Image"
	AnonymousLabel   = "Anonymous"
	NoDateLabel      = "Date not available"
)

const (
	postDateLayout    = "January 2, 2006"
	commentDateLayout = "January 2, 2006, 03:04 PM"
)

// Label returns the author's name, then username, then the anonymous label
func (a *Author) Label() string {
	if a == nil {
		return AnonymousLabel
	}
	if a.Name != "" {
		return a.Name
	}
	if a.Username != "" {
		return a.Username
	}
	return AnonymousLabel
}

// ImageRef returns the post image or the placeholder
func (p *Post) ImageRef() string {
	if p.Image == "" {
		return PlaceholderImage
	}
	return p.Image
}

func (p *Post) AuthorLabel() string {
	return p.Author.Label()
}

// DateLabel formats the creation date in local time
func (p *Post) DateLabel() string {
	if p.CreatedAt == nil || p.CreatedAt.IsZero() {
		return NoDateLabel
	}
	return p.CreatedAt.Local().Format(postDateLayout)
}

func (p *Post) LikeCount() int {
	return len(p.Likes)
}

// LikedBy reports whether userID is in the post's likes
func (p *Post) LikedBy(userID string) bool {
	if userID == "" {
		return false
	}
	return slices.Contains(p.Likes, userID)
}

func (p *Post) CommentCount() int {
	return len(p.Comments)
}

func (c *Comment) AuthorLabel() string {
	return c.Author.Label()
}

// DateLabel formats the comment date in local time
func (c *Comment) DateLabel() string {
	if c.Date == nil || c.Date.IsZero() {
		return NoDateLabel
	}
	return c.Date.Local().Format(commentDateLayout)
}
