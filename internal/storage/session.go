package storage

import (
	"database/sql"
	"fmt"

	"github.com/renderinc/forumsync/internal/session"
)

var _ session.Persister = (*DB)(nil)

// SaveSession stores s as the only saved session
func (d *DB) SaveSession(s session.Session) error {
	query := `
	INSERT INTO session (id, user_id, name, email, picture, credential, logged_in_at)
	VALUES (1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		name = excluded.name,
		email = excluded.email,
		picture = excluded.picture,
		credential = excluded.credential,
		logged_in_at = excluded.logged_in_at
	`

	_, err := d.db.Exec(query,
		s.Identity.ID, s.Identity.Name, s.Identity.Email, s.Identity.Picture,
		s.Credential, s.LoggedInAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the saved session, or nil if there is none
func (d *DB) LoadSession() (*session.Session, error) {
	s := &session.Session{}
	query := `
	SELECT user_id, name, email, picture, credential, logged_in_at
	FROM session
	WHERE id = 1
	`

	err := d.db.QueryRow(query).Scan(
		&s.Identity.ID, &s.Identity.Name, &s.Identity.Email, &s.Identity.Picture,
		&s.Credential, &s.LoggedInAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	s.Authenticated = s.Credential != ""
	return s, nil
}

// ClearSession forgets the saved session
func (d *DB) ClearSession() error {
	if _, err := d.db.Exec("DELETE FROM session"); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
