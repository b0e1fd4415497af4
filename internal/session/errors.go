package session

import "errors"

var (
	// ErrLoginRequired is returned when an operation needs a session and
	// there is none. No remote call has been made
	ErrLoginRequired = errors.New("login required")
	// ErrCredentialRejected is returned when the remote answered 401. The
	// session has already been cleared
	ErrCredentialRejected = errors.New("credential rejected")
	// ErrLoginFailed is returned when the login exchange did not yield a
	// credential
	ErrLoginFailed = errors.New("login failed")
)
