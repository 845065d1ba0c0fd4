package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ status int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e statusErr) HTTPStatus() int { return e.status }

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail bool
	}{
		{fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound, true},
		{fmt.Errorf("x: %w", ErrDuplicate), http.StatusConflict, true},
		{fmt.Errorf("x: %w", ErrValidation), http.StatusBadRequest, true},
		{fmt.Errorf("wrapped: %w", statusErr{http.StatusBadGateway}), http.StatusBadGateway, true},
		{statusErr{http.StatusInternalServerError}, http.StatusInternalServerError, false},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())

		var pd ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
		assert.Equal(t, tc.status, pd.Status)
		assert.Equal(t, tc.detail, pd.Detail != "", tc.err.Error())
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	decode := func(payload string) (body, error) {
		var out body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		err := DecodeJSON(httptest.NewRecorder(), req, &out)
		return out, err
	}

	out, err := decode(`{"name":"api"}`)
	require.NoError(t, err)
	assert.Equal(t, "api", out.Name)

	for _, bad := range []string{`{`, `{"name":"a","extra":1}`, `{"name":"a"} {}`, `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`} {
		_, err := decode(bad)
		assert.Error(t, err)
	}
}
