package errors

import (
	"errors"
	"net/http"
)

// New returns an error that formats as the given text.
var New = errors.New

// Is reports whether any error in err's tree matches target.
var Is = errors.Is

// Response error response
type Response struct {
	Error       error
	WireCode    string
	Description string
	URI         string
	StatusCode  int
	Header      http.Header
}

// NewResponse create the response pointer
func NewResponse(err error, statusCode int) *Response {
	return &Response{
		Error:      err,
		StatusCode: statusCode,
	}
}

// SetHeader sets the header entries associated with key to
// the single element value.
func (r *Response) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

// Lookup resolves err (possibly wrapped) to its known taxonomy entry.
// Unknown errors resolve to ErrServerError and ok=false.
func Lookup(err error) (re Response, ok bool) {
	for known := range Descriptions {
		if errors.Is(err, known) {
			return Response{
				Error:       known,
				WireCode:    WireCodes[known],
				Description: Descriptions[known],
				StatusCode:  StatusCodes[known],
			}, true
		}
	}
	return Response{
		Error:       ErrServerError,
		WireCode:    WireCodes[ErrServerError],
		Description: Descriptions[ErrServerError],
		StatusCode:  StatusCodes[ErrServerError],
	}, false
}
