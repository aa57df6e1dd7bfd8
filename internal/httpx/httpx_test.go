package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/echopost/internal/httpx"
)

func TestPostJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := httpx.New(5 * time.Second)

	var out struct {
		Status string `json:"status"`
	}
	err := client.PostJSON(context.Background(), server.URL, nil, map[string]string{"q": "hi"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	client := httpx.New(5 * time.Second)

	err := client.PostJSON(context.Background(), server.URL, nil, map[string]string{}, &struct{}{})

	require.Error(t, err)
	var statusErr *httpx.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad key")
	assert.Equal(t, int32(1), calls.Load(), "4xx should not be retried")
}

func TestPostForBytes_SendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Xi-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("binary-audio"))
	}))
	defer server.Close()

	client := httpx.New(time.Second)

	data, err := client.PostForBytes(context.Background(), server.URL,
		map[string]string{"xi-api-key": "secret"}, map[string]string{"text": "hello"})

	require.NoError(t, err)
	assert.Equal(t, []byte("binary-audio"), data)
}

func TestGetBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	client := httpx.New(time.Second)

	data, err := client.GetBytes(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := httpx.New(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.GetBytes(ctx, server.URL)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
