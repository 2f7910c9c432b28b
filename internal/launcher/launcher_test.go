package launcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestCheckHealthRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	l := New(Config{HealthURL: srv.URL}, nil)
	l.sleep = noSleep

	require.NoError(t, l.CheckHealth(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCheckHealthGivesUpAfterSecondFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := New(Config{HealthURL: srv.URL}, nil)
	l.sleep = noSleep

	err := l.CheckHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestCheckHealthStopsOnCancel(t *testing.T) {
	l := New(Config{HealthURL: "http://127.0.0.1:0/health", RetryDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.CheckHealth(ctx), context.Canceled)
}

func TestRunWaitsForChildExit(t *testing.T) {
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true binary not available")
	}
	l := New(Config{HealthURL: "http://127.0.0.1:0/health", RetryDelay: time.Hour}, nil)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background(), exec.Command(path)) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("launcher did not return after child exit")
	}
}
