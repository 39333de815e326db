// Package apierr is the failure vocabulary of the client core. Every error
// returned by the token manager, the dedup cache and the call facade is an
// *Error whose Kind tells the caller what to do next (log in again, show a
// message, try later).
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNoToken means no access credential is available.
	KindNoToken
	// KindNoRefreshToken means the refresh credential is missing or expired.
	// No request was sent.
	KindNoRefreshToken
	// KindRefreshRejected means the server refused the refresh credential.
	// The local session has been destroyed.
	KindRefreshRejected
	// KindRejected means login or registration was refused by the server.
	KindRejected
	// KindAuthRequired is any 401 on an authenticated call.
	KindAuthRequired
	// KindRequest is any other non-2xx response.
	KindRequest
	// KindNetwork is a transport failure: dial, timeout, open breaker.
	KindNetwork
	// KindDecode means a response body could not be decoded.
	KindDecode
	// KindValidation means the request was refused locally before sending.
	KindValidation
	// KindStorage is a credential store failure.
	KindStorage
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindNoToken:         "no_token",
	KindNoRefreshToken:  "no_refresh_token",
	KindRefreshRejected: "refresh_rejected",
	KindRejected:        "rejected",
	KindAuthRequired:    "auth_required",
	KindRequest:         "request_failed",
	KindNetwork:         "network",
	KindDecode:          "decode",
	KindValidation:      "validation",
	KindStorage:         "storage",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is matching on kind.
var (
	ErrNoToken         = &Error{Kind: KindNoToken, Message: "No valid access token available"}
	ErrNoRefreshToken  = &Error{Kind: KindNoRefreshToken, Message: "No valid refresh token available"}
	ErrRefreshRejected = &Error{Kind: KindRefreshRejected, Message: "Token refresh failed"}
	ErrRejected        = &Error{Kind: KindRejected, Message: "Request rejected"}
	ErrAuthRequired    = &Error{Kind: KindAuthRequired, Message: "Authentication required. Please log in again.", Status: http.StatusUnauthorized}
	ErrRequest         = &Error{Kind: KindRequest, Message: "API request failed"}
	ErrNetwork         = &Error{Kind: KindNetwork, Message: "network error"}
	ErrDecode          = &Error{Kind: KindDecode, Message: "invalid response body"}
	ErrValidation      = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrStorage         = &Error{Kind: KindStorage, Message: "credential storage failure"}
)

// Error is a classified failure. Status is the HTTP status when one was
// received, 0 otherwise.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same Kind, so
// errors.Is(err, apierr.ErrAuthRequired) works for any auth-required error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind.
func New(kind Kind, message string, status int) *Error {
	return &Error{Kind: kind, Message: message, Status: status}
}

// Wrap builds an Error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// MessageOf returns the human readable message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
