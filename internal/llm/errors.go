package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a chat client failure
type Kind string

// Error kinds
const (
	KindHTTP             Kind = "http"
	KindNoBody           Kind = "no_body"
	KindAborted          Kind = "aborted"
	KindNetwork          Kind = "network"
	KindNoAvailableSites Kind = "no_available_sites"
	KindAllSitesFailed   Kind = "all_sites_failed"
)

// Error codes carried alongside the kind
const (
	CodeHTTPError        = "http_error"
	CodeNoBody           = "no_body"
	CodeAborted          = "aborted"
	CodeNetworkError     = "network_error"
	CodeNoAvailableSites = "no_available_sites"
	CodeAllSitesFailed   = "all_sites_failed"
)

// Error is the error type returned by the chat client and failover controller
type Error struct {
	Kind    Kind
	Code    string
	Status  int // upstream HTTP status, KindHTTP only
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewHTTPError creates an error for a non-success upstream status
func NewHTTPError(status int, code, message string) *Error {
	if code == "" {
		code = CodeHTTPError
	}
	if message == "" {
		message = fmt.Sprintf("HTTP error %d", status)
	}
	return &Error{Kind: KindHTTP, Code: code, Status: status, Message: message}
}

// NewAbortedError creates an error for a cancelled request
func NewAbortedError(cause error) *Error {
	return &Error{Kind: KindAborted, Code: CodeAborted, Message: "request aborted", Err: cause}
}

// NewNetworkError wraps a transport-level failure
func NewNetworkError(cause error) *Error {
	return &Error{Kind: KindNetwork, Code: CodeNetworkError, Message: cause.Error(), Err: cause}
}

// NewNoBodyError creates an error for a success response without a body
func NewNoBodyError() *Error {
	return &Error{Kind: KindNoBody, Code: CodeNoBody, Message: "no response body"}
}

// NewNoAvailableSitesError creates the error returned when no site is eligible
func NewNoAvailableSitesError() *Error {
	return &Error{Kind: KindNoAvailableSites, Code: CodeNoAvailableSites, Message: "no available API sites"}
}

// NewAllSitesFailedError creates the error returned when the retry budget is spent
func NewAllSitesFailedError(attempts int, last error) *Error {
	lastMsg := "unknown error"
	if last != nil {
		lastMsg = last.Error()
	}
	return &Error{
		Kind:    KindAllSitesFailed,
		Code:    CodeAllSitesFailed,
		Message: fmt.Sprintf("all sites failed (%d attempts): %s", attempts, lastMsg),
		Err:     last,
	}
}

// KindOf returns the kind of the outermost *Error in err's chain, or ""
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's outermost *Error has the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsAborted reports whether err is a cancellation
func IsAborted(err error) bool {
	return IsKind(err, KindAborted)
}
