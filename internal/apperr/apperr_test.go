package apperr

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

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusOf(BadRequest("nope")))
	assert.Equal(t, http.StatusNotFound, StatusOf(fmt.Errorf("lookup: %w", NotFound("missing"))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestWriteHidesUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("upstream timeout")
	err := Unavailable("Could not translate message. Please try again.", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Text string `json:"text"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, 64, &v))
	assert.Equal(t, "hi", v.Text)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":`))
	err := DecodeJSON(httptest.NewRecorder(), r, 64, &v)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	big := `{"text":"` + strings.Repeat("x", 100) + `"}`
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	err = DecodeJSON(httptest.NewRecorder(), r, 64, &v)
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(err))
	var tooLarge *http.MaxBytesError
	assert.ErrorAs(t, err, &tooLarge)
}
