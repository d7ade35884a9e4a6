package urlfetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	c := New(5*time.Second, "test")
	res, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Body) != "hello world" {
		t.Fatalf("got body %q", res.Body)
	}
}

func TestFetchGzipDecoding(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("compressed payload"))
	gz.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := New(5*time.Second, "test")
	res, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Body) != "compressed payload" {
		t.Fatalf("got body %q", res.Body)
	}
}

func TestFetchFollowsRedirect(t *testing.T) {
	var target string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("final body"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	target = srv.URL + "/final"

	c := New(5*time.Second, "test")
	res, err := c.Fetch(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Body) != "final body" {
		t.Fatalf("got body %q", res.Body)
	}
}

func TestFetchNotFoundClassifiedAsKindNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(5*time.Second, "test")
	_, err := c.Fetch(context.Background(), srv.URL)
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ferr.Kind != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", ferr.Kind)
	}
}

func TestFetchServerErrorClassifiedAsKindFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(5*time.Second, "test")
	_, err := c.Fetch(context.Background(), srv.URL)
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if ferr.Kind != KindFailed {
		t.Fatalf("expected KindFailed, got %v", ferr.Kind)
	}
}

func TestFilenameFromDisposition(t *testing.T) {
	name := filenameFromDisposition(`attachment; filename="release.nzb"`)
	if name != "release.nzb" {
		t.Fatalf("got %q", name)
	}
	if filenameFromDisposition("") != "" {
		t.Fatalf("expected empty filename for empty header")
	}
	if filenameFromDisposition("garbage;;;") != "" {
		t.Fatalf("expected empty filename for unparseable header")
	}
}

func TestRetryBackoffCapsAndGrows(t *testing.T) {
	small := retryBackoff(time.Second, 5)
	large := retryBackoff(time.Second, 1)
	if large <= small {
		t.Fatalf("expected backoff to grow as remaining budget shrinks: small=%v large=%v", small, large)
	}
	capped := retryBackoff(time.Minute, 0)
	if capped > 2*time.Minute {
		t.Fatalf("expected backoff capped at 2 minutes, got %v", capped)
	}
}

func TestFetchWithRetryStopsOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(5*time.Second, "test")
	_, err := c.FetchWithRetry(context.Background(), srv.URL, RetryPolicy{Retries: 3, ConnectRetries: 3, Interval: time.Millisecond})
	var ferr *Error
	if !errors.As(err, &ferr) || ferr.Kind != KindNotFound {
		t.Fatalf("expected immediate KindNotFound failure, got %v", err)
	}
}

func TestFetchWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(5*time.Second, "test")
	res, err := c.FetchWithRetry(context.Background(), srv.URL, RetryPolicy{Retries: 5, ConnectRetries: 5, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("FetchWithRetry: %v", err)
	}
	if string(res.Body) != "ok" {
		t.Fatalf("got body %q", res.Body)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
