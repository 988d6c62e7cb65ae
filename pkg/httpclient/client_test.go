package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequestDecodesAndSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "abc", r.URL.Query().Get("ids"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", Options{Headers: map[string]string{"X-API-Key": "secret"}})
	var out struct {
		Value int `json:"value"`
	}
	_, err := c.DoRequest(context.Background(), http.MethodGet, "/thing", &RequestOptions{Params: map[string]string{"ids": "abc"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestDoRequestNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad size"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Options{})
	_, err := c.DoRequest(context.Background(), http.MethodPost, "/orders", &RequestOptions{Data: map[string]string{"a": "b"}}, nil)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, err.Error(), "bad size")
}

func TestDoRequestUnsupportedMethod(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", Options{})
	_, err := c.DoRequest(context.Background(), "PATCH", "/x", nil, nil)
	assert.Error(t, err)
}
