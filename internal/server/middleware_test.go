package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/jkh/internal/idgen"
	"github.com/alfredjeanlab/jkh/internal/metrics"
	"github.com/alfredjeanlab/jkh/internal/model"
)

func TestObserve_RequestID(t *testing.T) {
	var seen string
	h := Observe(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	if !strings.HasPrefix(id, idgen.RequestPrefix) {
		t.Fatalf("generated id = %q", id)
	}
	if seen != id {
		t.Fatalf("context id %q != header id %q", seen, id)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "client-supplied" {
		t.Fatalf("incoming id not reused: %q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); !strings.HasPrefix(got, idgen.RequestPrefix) {
		t.Fatalf("oversized id should be replaced, got %q", got)
	}
}

func TestObserve_UnmatchedRoute(t *testing.T) {
	m := metrics.New("test")
	h := Observe(m, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/whatever", nil))
	requireStatus(t, rec, 404)

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(metricsRec.Body.String(), `route="unmatched"`) {
		t.Fatalf("expected unmatched route label, got:\n%s", metricsRec.Body.String())
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	requireStatus(t, rec, 500)
	if !strings.Contains(rec.Body.String(), `"internal_error"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	t.Fatal("expected panic")
}

func TestPanicRecordedAs500(t *testing.T) {
	m := metrics.New("test")
	h := Observe(m, Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	want := `test_http_requests_total{code="500",method="GET",route="unmatched"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("metrics output missing %q", want)
	}
}

func TestLimitConcurrency(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	running, peak := 0, 0
	h := LimitConcurrency(2, "/stream", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if peak != 2 {
		t.Fatalf("peak concurrency = %d, want 2", peak)
	}
}

func TestLimitConcurrency_WaitingRequestGivesUp(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	h := LimitConcurrency(1, "/stream", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))

	go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(ctx))
	requireStatus(t, rec, 503)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	if resp["ok"] != false || resp["error"] != model.CodeBusy {
		t.Fatalf("response = %v", resp)
	}

	// The exempt path never waits.
	rec = httptest.NewRecorder()
	h2 := LimitConcurrency(1, "/stream", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h2.ServeHTTP(rec, httptest.NewRequest("GET", "/stream", nil))
	requireStatus(t, rec, http.StatusNoContent)
}
