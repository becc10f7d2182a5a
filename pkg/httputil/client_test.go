package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Env: "test",
		JobService: config.JobServiceConfig{
			MaxRetries: 2,
			RetryDelay: 2 * time.Second,
		},
	}
}

func TestNew(t *testing.T) {
	client := New(testConfig(), logger.NewNop())

	require.NotNil(t, client)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 2, client.retryConfig.MaxRetries)
	assert.Equal(t, 2*time.Second, client.retryConfig.InitialDelay)
	assert.Equal(t, BackoffLinear, client.retryConfig.Backoff)
	assert.True(t, client.retryConfig.Enabled)
}

func TestNewWithTimeout(t *testing.T) {
	client := NewWithTimeout(testConfig(), logger.NewNop(), 5*time.Second)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
}

func TestDisableRetry(t *testing.T) {
	client := New(testConfig(), logger.NewNop()).DisableRetry()
	assert.False(t, client.retryConfig.Enabled)
}

func TestDelayFor(t *testing.T) {
	client := New(testConfig(), logger.NewNop())
	assert.Equal(t, 2*time.Second, client.delayFor(1))
	assert.Equal(t, 4*time.Second, client.delayFor(2))

	client.WithBackoff(BackoffExponential).WithRetry(5, time.Second)
	assert.Equal(t, time.Second, client.delayFor(1))
	assert.Equal(t, 4*time.Second, client.delayFor(3))
}

func TestGetSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(testConfig(), logger.NewNop())
	resp, err := client.Get(context.Background(), server.URL, http.Header{"Cache-Control": {"no-cache"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRetryOn5xxWithLinearBackoff(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	var bodies []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		stamps = append(stamps, time.Now())
		bodies = append(bodies, string(body))
		n := len(stamps)
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	delay := 40 * time.Millisecond
	client := New(testConfig(), logger.NewNop()).WithRetry(2, delay)

	resp, err := client.PostJSON(context.Background(), server.URL, map[string]string{"strategy": "s1"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, stamps, 3)

	// Body is replayed on every attempt
	for _, b := range bodies {
		assert.JSONEq(t, `{"strategy":"s1"}`, b)
	}

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, first, delay)
	assert.GreaterOrEqual(t, second, 2*delay)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(testConfig(), logger.NewNop()).WithRetry(2, time.Millisecond)
	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 3, attempts)
}

func TestNoRetryOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(testConfig(), logger.NewNop()).WithRetry(2, time.Millisecond)
	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestRetryOnAttemptTimeout(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		if n == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewWithTimeout(testConfig(), logger.NewNop(), 50*time.Millisecond).WithRetry(2, time.Millisecond)
	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestRetryStopsWhenContextDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	client := New(testConfig(), logger.NewNop()).WithRetry(2, time.Second)
	_, err := client.Get(ctx, server.URL, nil)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, ClassifyError(err))
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, false},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.statusCode), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableStatus(tt.statusCode))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	opErr := func(errno syscall.Errno) error {
		return &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", errno)}
	}

	tests := []struct {
		name      string
		err       error
		want      ErrorKind
		retryable bool
	}{
		{"nil", nil, KindNone, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout, true},
		{"net timeout", timeoutErr{}, KindTimeout, true},
		{"reset", opErr(syscall.ECONNRESET), KindReset, true},
		{"eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), KindReset, true},
		{"refused", opErr(syscall.ECONNREFUSED), KindUnreachable, false},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}, KindUnreachable, false},
		{"other", errors.New("tls: bad certificate"), KindOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryableTransportError(tt.err))
		})
	}
}

func TestErrorKindStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, KindTimeout.StatusCode())
	assert.Equal(t, http.StatusServiceUnavailable, KindUnreachable.StatusCode())
	assert.Equal(t, http.StatusBadGateway, KindReset.StatusCode())
	assert.Equal(t, http.StatusBadGateway, KindOther.StatusCode())
}
