package refresher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	ErrFetch         = errors.New("refresher: fetch failed")
	ErrDecode        = errors.New("refresher: decode failed")
	ErrCanvasMissing = errors.New("refresher: canvas not found")
	ErrRender        = errors.New("refresher: render failed")
)

// Error carries the context of a failed refresh.
type Error struct {
	Kind     error
	Canvas   string
	Endpoint string
	// Status is the HTTP status for fetch errors caused by a non-2xx reply.
	Status int
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Canvas != "" {
		fmt.Fprintf(&b, " canvas=%s", e.Canvas)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " endpoint=%s", e.Endpoint)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// HTTPStatus maps the kind to the status a handler should answer with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case ErrCanvasMissing:
		return http.StatusNotFound
	case ErrFetch, ErrDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Outcome names the result of a refresh for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrFetch):
		return "fetch_error"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrCanvasMissing):
		return "canvas_missing"
	default:
		return "render_error"
	}
}
