package convert

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure. Every stage maps its errors onto
// exactly one kind so callers can translate failures without inspecting
// error strings.
type Kind string

const (
	// KindMalformedRequest indicates the request body was unparsable or the
	// source reference field was absent or empty.
	KindMalformedRequest Kind = "malformed_request"
	// KindUnsupportedSourceType indicates the source reference does not name
	// a macro-enabled workbook.
	KindUnsupportedSourceType Kind = "unsupported_source_type"
	// KindSourceFetch indicates the source bytes could not be retrieved.
	KindSourceFetch Kind = "source_fetch"
	// KindUnreadableSource indicates the fetched bytes are not a well-formed
	// workbook container.
	KindUnreadableSource Kind = "unreadable_source"
	// KindEncode indicates an internal fault while re-encoding the workbook.
	KindEncode Kind = "encode"
	// KindPublish indicates the output store rejected or failed the upload.
	KindPublish Kind = "publish"
	// KindLinkIssuance indicates the object was published but no signed
	// read URL could be minted.
	KindLinkIssuance Kind = "link_issuance"
	// KindConfiguration indicates required deployment configuration is
	// missing or invalid.
	KindConfiguration Kind = "configuration"
)

// Error is the single error type crossing the pipeline boundary.
type Error struct {
	Kind  Kind
	Stage string
	// UpstreamStatus carries the HTTP status returned by the source host,
	// when known. Only set for KindSourceFetch.
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed (%s)", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to the caller-visible status code.
// Source fetch failures pass the upstream status through: a 4xx from the
// source host is the caller's problem, anything else surfaces as a bad
// gateway.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMalformedRequest, KindUnsupportedSourceType, KindUnreadableSource:
		return http.StatusBadRequest
	case KindSourceFetch:
		if e.UpstreamStatus >= 400 && e.UpstreamStatus < 500 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// UpstreamStatusError reports a non-2xx response from the source host.
// Fetcher implementations return it (possibly wrapped) so the pipeline can
// pass the upstream status through to the caller.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("source host returned HTTP %d", e.StatusCode)
}

func upstreamStatus(err error) int {
	var se *UpstreamStatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
