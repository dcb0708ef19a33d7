package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// maxAttempts caps the retry loop: one initial try plus nine retries.
	maxAttempts = 10

	// baseRetryDelay is doubled before every retry: 3s, 6s, 12s, 24s, ...
	baseRetryDelay = 3 * time.Second
)

// Response is a fully-read HTTP response.  The body is always drained and
// closed before we hand it back, so callers never juggle io.ReadCloser.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// ContentType returns the lower-cased Content-Type header.
func (r *Response) ContentType() string {
	return normaliseContentType(r.Header.Get("Content-Type"))
}

// StatusError is returned by the typed operations when the server answered
// with a status the operation can't use.  It keeps enough of the response
// around for the operator to diagnose what the server actually sent.
type StatusError struct {
	StatusCode  int
	Status      string
	URL         string
	ContentType string
	Preview     string
}

func (e *StatusError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("confluence: unexpected response %s from %s (content-type %q): %s",
			e.Status, e.URL, e.ContentType, e.Preview)
	}
	return fmt.Sprintf("confluence: unexpected response %s from %s", e.Status, e.URL)
}

// IsRateLimited reports whether err wraps a 429 response, which means the
// retry budget was exhausted while the server kept rate-limiting us.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

// Get performs an authenticated GET with the full retry/backoff policy.
//
// Retry policy: up to maxAttempts tries.  Before the first try we sleep a
// small random jitter (50-150ms) to desynchronise concurrent callers.
// Before retry k we sleep baseRetryDelay * 2^(k-1), uncapped.  A 429 and any
// transport error trigger a retry; every other status is returned to the
// caller as-is.  After the final attempt a 429 is returned (not an error)
// and a transport error is surfaced.
func (api *API) Get(ctx context.Context, u *url.URL) (*Response, error) {
	return api.get(ctx, u.String(), true)
}

// GetRaw is Get for URLs that come out of page HTML rather than endpoint
// builders.  withAuth=false performs an anonymous fetch, used for
// already-public external resources where auth headers can confuse CDNs.
func (api *API) GetRaw(ctx context.Context, rawURL string, withAuth bool) (*Response, error) {
	return api.get(ctx, rawURL, withAuth)
}

func (api *API) get(ctx context.Context, rawURL string, withAuth bool) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt == 1 {
			api.doSleep(firstAttemptJitter())
		} else {
			api.doSleep(baseRetryDelay << (attempt - 2))
		}

		resp, err := api.doOnce(ctx, rawURL, withAuth)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("confluence: request cancelled: %w", ctx.Err())
			}
			lastErr = err
			if attempt == maxAttempts {
				return nil, fmt.Errorf("confluence: request failed after %d attempts: %w", maxAttempts, lastErr)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			continue
		}

		// Everything else -- 2xx, 4xx, 5xx, and a final-attempt 429 -- goes
		// back to the caller for status inspection.
		return resp, nil
	}

	return nil, fmt.Errorf("confluence: request to %s exhausted %d attempts: %w", rawURL, maxAttempts, lastErr)
}

func (api *API) doOnce(ctx context.Context, rawURL string, withAuth bool) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't instantiate http request: %w", err)
	}

	req.Header.Add("Accept", "application/json, */*")

	client := api.Client
	if withAuth {
		switch c := api.Credential.(type) {
		case BasicAuth:
			req.SetBasicAuth(c.Username, c.Token)
		case BearerToken:
			req.Header.Set("Authorization", "Bearer "+c.Token)
		case Session:
			// cookies ride along in the session's jar
			client = c.Client
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't perform http request: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if cerr := resp.Body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't read http response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// requestJSON performs an authenticated GET and decodes the 2xx body into v.
// Non-2xx statuses become a *StatusError carrying a body preview, and a body
// that doesn't match the expected JSON shape is reported with the same
// diagnostics rather than a bare unmarshal error.
func (api *API) requestJSON(ctx context.Context, u *url.URL, v any) error {
	resp, err := api.Get(ctx, u)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			URL:         u.String(),
			ContentType: resp.ContentType(),
			Preview:     bodyPreview(resp.Body),
		}
	}

	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("confluence: couldn't parse json response from %s (content-type %q, body %q): %w",
			u.String(), resp.ContentType(), bodyPreview(resp.Body), err)
	}

	return nil
}

// doSleep tolerates an API built by struct literal, where Sleep is nil.
func (api *API) doSleep(d time.Duration) {
	if api.Sleep == nil {
		time.Sleep(d)
		return
	}
	api.Sleep(d)
}

func firstAttemptJitter() time.Duration {
	return 50*time.Millisecond + time.Duration(rand.Int63n(int64(100*time.Millisecond)))
}

func bodyPreview(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}

func normaliseContentType(ct string) string {
	// "text/HTML; charset=utf-8" and friends
	return strings.ToLower(ct)
}
