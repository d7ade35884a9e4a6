// Package urlfetch retrieves NZB bodies and feed documents over HTTP(S)
// (C13): gzip transparent decoding, bounded redirect following, and a
// failure taxonomy the scheduler-style retry loop (FetchWithRetry, used by
// C9) can act on.
package urlfetch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Kind classifies why a fetch failed, mirroring the NNTP error taxonomy in
// §4.4 so callers can apply the same retry-vs-fail decision.
type Kind int

const (
	KindNone Kind = iota
	KindConnect
	KindNotFound
	KindFatal
	KindRetry
	KindFailed
)

// Error is returned by Fetch on any non-2xx or transport failure.
type Error struct {
	Kind Kind
	URL  string
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("urlfetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("urlfetch %s: http %d", e.URL, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

const maxRedirects = 5

// Result is a successfully retrieved document.
type Result struct {
	Body     []byte
	Filename string // from Content-Disposition, if present
}

// defaultRPS bounds how often this client issues requests to any host,
// independent of the server-side rate limits an indexer or feed source may
// impose — keeps a misbehaving feed interval from hammering a host.
const defaultRPS = 4

// Client fetches URL-job bodies and feed documents.
type Client struct {
	hc        *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// New builds a Client with the given per-attempt timeout. Redirects are
// followed manually (see fetch) so they can be capped at maxRedirects and
// relative Location headers resolved against the current URL.
func New(timeout time.Duration, version string) *Client {
	return &Client{
		hc: &http.Client{
			Timeout:       timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		userAgent: "gonzbd/" + version,
		limiter:   rate.NewLimiter(rate.Limit(defaultRPS), defaultRPS*2),
	}
}

// Fetch retrieves a single resource, following redirects, gunzipping a
// gzip-encoded body, and surfacing the filename from Content-Disposition.
func (c *Client) Fetch(ctx context.Context, target string) (*Result, error) {
	current := target

	for redirects := 0; ; redirects++ {
		if redirects > maxRedirects {
			return nil, &Error{Kind: KindFatal, URL: target, Err: fmt.Errorf("too many redirects")}
		}

		u, err := url.Parse(current)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, &Error{Kind: KindFatal, URL: current, Err: fmt.Errorf("unsupported or invalid url")}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindFatal, URL: current, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, &Error{Kind: KindFatal, URL: current, Err: err}
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("Connection", "close")

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, &Error{Kind: KindConnect, URL: current, Err: err}
		}

		if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, &Error{Kind: KindFailed, URL: current, Code: resp.StatusCode, Err: fmt.Errorf("redirect without location")}
			}
			next, err := u.Parse(loc)
			if err != nil {
				return nil, &Error{Kind: KindFailed, URL: current, Err: err}
			}
			current = next.String()
			continue
		}

		result, ferr := readResult(resp)
		resp.Body.Close()
		return result, ferr
	}
}

func readResult(resp *http.Response) (*Result, error) {
	target := resp.Request.URL.String()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &Error{Kind: KindNotFound, URL: target, Code: resp.StatusCode}
	}
	if resp.StatusCode == 499 || (resp.StatusCode >= 400 && resp.StatusCode < 500) {
		return nil, &Error{Kind: KindConnect, URL: target, Code: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindFailed, URL: target, Code: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &Error{Kind: KindFailed, URL: target, Err: err}
		}
		defer gz.Close()
		reader = gz
	}

	var body []byte
	var err error
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
			buf := make([]byte, 0, n)
			body, err = readAll(reader, buf)
		} else {
			body, err = io.ReadAll(reader)
		}
	} else {
		body, err = io.ReadAll(reader)
	}
	if err != nil {
		return nil, &Error{Kind: KindFailed, URL: target, Err: err}
	}

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	return &Result{Body: body, Filename: filename}, nil
}

func readAll(r io.Reader, buf []byte) ([]byte, error) {
	w := &growBuf{buf: buf}
	_, err := io.Copy(w, r)
	return w.buf, err
}

type growBuf struct{ buf []byte }

func (g *growBuf) Write(p []byte) (int, error) {
	g.buf = append(g.buf, p...)
	return len(p), nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
