package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/hirosegw/changeboard/pkg/infra/httpclient"
)

// fastPolicy keeps retries but makes backoff negligible for tests
func fastPolicy() httpclient.Policy {
	p := httpclient.DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.WaitBuffer = time.Millisecond
	return p
}

func TestClient_Do_SuccessReturnsImmediately(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := httpclient.New(fastPolicy())
	resp, err := client.Get(context.Background(), server.URL, nil)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusOK)
	gt.Number(t, calls.Load()).Equal(int32(1))
}

func TestClient_Do_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := httpclient.New(fastPolicy())
	resp, err := client.Get(context.Background(), server.URL, nil)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusNotFound)
	gt.Number(t, calls.Load()).Equal(int32(1))
}

func TestClient_Do_ServerErrorRetriedThenLastResponseReturned(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	policy := fastPolicy()
	policy.MaxRetries = 2

	client := httpclient.New(policy)
	resp, err := client.Get(context.Background(), server.URL, nil)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusBadGateway)
	gt.Number(t, calls.Load()).Equal(int32(3)) // initial + 2 retries
}

func TestClient_Do_ServerErrorRecoversMidway(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httpclient.New(fastPolicy())
	resp, err := client.Get(context.Background(), server.URL, nil)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusOK)
	gt.Number(t, calls.Load()).Equal(int32(3))
}

func TestClient_Do_RateLimitWithNearResetWaitsAndRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var slept []time.Duration
	client := httpclient.New(fastPolicy(), httpclient.WithSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	resp, err := client.Get(context.Background(), server.URL, nil)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusOK)
	gt.Number(t, calls.Load()).Equal(int32(2))

	// The wait must come from the reported reset, not from generic backoff.
	gt.Number(t, len(slept)).Equal(1)
	gt.Number(t, int64(slept[0])).Greater(int64(2*time.Second))
}

func TestClient_Do_RateLimitWithFarResetReturnsResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := httpclient.New(fastPolicy(), httpclient.WithSleep(func(ctx context.Context, d time.Duration) error {
		t.Fatalf("should not sleep for a distant reset, got %v", d)
		return nil
	}))

	resp, err := client.Get(context.Background(), server.URL, nil)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusTooManyRequests)
	gt.Number(t, calls.Load()).Equal(int32(1))
}

func TestClient_Do_ForbiddenWithoutQuotaHeaderIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := httpclient.New(fastPolicy())
	resp, err := client.Get(context.Background(), server.URL, nil)
	gt.NoError(t, err)
	defer resp.Body.Close()

	gt.Number(t, resp.StatusCode).Equal(http.StatusForbidden)
	gt.Number(t, calls.Load()).Equal(int32(1))
}

func TestClient_Do_NetworkErrorExhaustsRetries(t *testing.T) {
	// Server is closed before the request, so every attempt fails at the
	// transport level.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	policy := fastPolicy()
	policy.MaxRetries = 2

	client := httpclient.New(policy)
	_, err := client.Get(context.Background(), url, nil)
	gt.Error(t, err)
	gt.String(t, err.Error()).Contains("Network error")
}

func TestParseRateLimitHeaders(t *testing.T) {
	t.Run("429 without headers is limited without reset", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
		rl := httpclient.ParseRateLimitHeaders(resp)
		gt.Value(t, rl.Limited).Equal(true)
		gt.Value(t, rl.HasReset).Equal(false)
	})

	t.Run("403 with zero remaining is limited", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "0")
		h.Set("X-RateLimit-Reset", "2000000000")
		resp := &http.Response{StatusCode: http.StatusForbidden, Header: h}
		rl := httpclient.ParseRateLimitHeaders(resp)
		gt.Value(t, rl.Limited).Equal(true)
		gt.Value(t, rl.HasReset).Equal(true)
		gt.Value(t, rl.Reset).Equal(time.Unix(2000000000, 0))
	})

	t.Run("403 with remaining quota is not limited", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "42")
		resp := &http.Response{StatusCode: http.StatusForbidden, Header: h}
		rl := httpclient.ParseRateLimitHeaders(resp)
		gt.Value(t, rl.Limited).Equal(false)
	})

	t.Run("GitLab header family is understood", func(t *testing.T) {
		h := http.Header{}
		h.Set("RateLimit-Remaining", "0")
		h.Set("RateLimit-Reset", "2000000000")
		resp := &http.Response{StatusCode: http.StatusForbidden, Header: h}
		rl := httpclient.ParseRateLimitHeaders(resp)
		gt.Value(t, rl.Limited).Equal(true)
		gt.Value(t, rl.HasReset).Equal(true)
	})
}
