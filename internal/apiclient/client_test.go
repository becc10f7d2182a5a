package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esclipse/SynthraCloud/internal/screening"
)

func TestWaitPollsUntilComplete(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			var req map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "s2", req["strategy"])
			io.WriteString(w, `{"polling":true,"pollToken":"tok","status":"queued","retryInMs":10}`)
		case http.MethodGet:
			assert.Equal(t, "tok", r.URL.Query().Get("pollToken"))
			if atomic.AddInt32(&polls, 1) < 2 {
				io.WriteString(w, `{"polling":true,"pollToken":"tok","status":"running","retryInMs":10}`)
				return
			}
			io.WriteString(w, `{"strategy":"s2","matches":[{"symbol":"600519","close":1700.5}],"stats":{"total":10,"matched":1},"analysis":""}`)
		}
	}))
	defer srv.Close()

	var seen []string
	res, err := New(srv.URL, 5*time.Second).Wait(context.Background(), screening.Request{Strategy: "s2"}, func(p *screening.Pending) {
		seen = append(seen, p.Status)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"queued", "running"}, seen)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "600519", res.Matches[0].Symbol)
	assert.Equal(t, 10, res.Stats.Total)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Invalid or expired pollToken"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, 5*time.Second).Poll(context.Background(), "bad")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid or expired pollToken", apiErr.Message)
}

func TestWaitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"polling":true,"pollToken":"tok","status":"queued","retryInMs":60000}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, 5*time.Second).Wait(ctx, screening.Request{}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
