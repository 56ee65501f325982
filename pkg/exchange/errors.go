package exchange

import (
	"errors"
	"fmt"
	"net/http"
)

// Operation names carried by Error.
const (
	OpSearch      = "search"
	OpRetrieve    = "retrieve"
	OpIssue       = "issue"
	OpResolve     = "resolve"
	OpCertificate = "certificate"
)

var (
	ErrConfig     = errors.New("exchange: invalid configuration")
	ErrValidation = errors.New("exchange: invalid input")

	ErrDiscovery   = errors.New("exchange: document discovery failed")
	ErrRetrieval   = errors.New("exchange: document retrieval failed")
	ErrIssuance    = errors.New("exchange: VHL issuance failed")
	ErrResolution  = errors.New("exchange: VHL resolution failed")
	ErrCertificate = errors.New("exchange: certificate generation failed")

	ErrUnreachable = errors.New("network unreachable")
	ErrTimeout     = errors.New("request timed out")

	ErrStale            = errors.New("exchange: result superseded by a newer search")
	ErrDiscoveryPending = errors.New("exchange: discovery has not completed for this identifier")
)

var opErrors = map[string]error{
	OpSearch:      ErrDiscovery,
	OpRetrieve:    ErrRetrieval,
	OpIssue:       ErrIssuance,
	OpResolve:     ErrResolution,
	OpCertificate: ErrCertificate,
}

// Error is a failed exchange operation. StatusCode is set when the peer
// answered with a non-2xx status.
type Error struct {
	Op         string
	URL        string
	StatusCode int
	StatusText string
	Err        error
}

func (e *Error) Error() string {
	msg := "exchange " + e.Op
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d %s", e.StatusCode, e.StatusText)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the operation.
func (e *Error) Is(target error) bool {
	return opErrors[e.Op] == target
}

// StatusError builds an Error for a non-2xx response.
func StatusError(op, url string, resp *http.Response) *Error {
	text := http.StatusText(resp.StatusCode)
	if resp.Status != "" {
		text = statusReason(resp.Status)
	}
	return &Error{Op: op, URL: url, StatusCode: resp.StatusCode, StatusText: text}
}

// statusReason strips the leading code from a status line ("404 Not Found").
func statusReason(status string) string {
	for i := 0; i < len(status); i++ {
		if status[i] == ' ' {
			return status[i+1:]
		}
	}
	return status
}

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// StatusCode extracts the HTTP status of err, or zero.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
