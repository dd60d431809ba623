package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "freeslotd/internal/log"
)

// fetchTimeout bounds a single feed request so one hung server cannot
// stall a whole refresh pass.
const fetchTimeout = 15 * time.Second

// NetworkError indicates a feed could not be retrieved: a transport
// failure, or a response with a non-success status.
type NetworkError struct {
	URL    string
	Status int // 0 when the transport failed before any response
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ics: fetch %s: status %d", RedactURL(e.URL), e.Status)
	}
	return fmt.Sprintf("ics: fetch %s: %v", RedactURL(e.URL), e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FormatError indicates the response is not parseable calendar data. The
// common case is a feed URL answering with an HTML page (a login redirect
// or a misconfigured share link) instead of an ICS body.
type FormatError struct {
	URL    string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.URL == "" {
		return "ics: " + e.Reason
	}
	return fmt.Sprintf("ics: %s: %s", RedactURL(e.URL), e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Fetcher retrieves raw ICS bodies over HTTP. It deliberately does no
// caching: the persisted common free-slot map is the cache of record, and
// a stale feed body could mask a calendar edit for a full extra interval.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// Fetch issues a GET for one feed and returns the raw body.
//
// Failure modes:
//   - *NetworkError for transport errors and non-2xx statuses
//   - *FormatError when the declared content type is HTML, which a
//     calendar endpoint never legitimately serves
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("feed URL is empty")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	appLog.Debug("ics fetch start", "url", RedactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}

	if ct := resp.Header.Get("Content-Type"); strings.Contains(strings.ToLower(ct), "text/html") {
		return nil, &FormatError{URL: url, Reason: "server returned HTML instead of calendar data"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	appLog.Info("ics fetch success", "url", RedactURL(url), "bytes", len(body))
	return body, nil
}

// RedactURL hides sensitive parts of an ICS URL for logging purposes.
// Private share links carry secret tokens in the path or query.
func RedactURL(u string) string {
	// Example:
	//   https://example.com/path/to/private.ics?token=abcd
	// -> https://example.com/...(redacted)
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i + 3
	for j < len(u) && u[j] != '/' {
		j++
	}

	return u[:j] + redactedSuffix
}
