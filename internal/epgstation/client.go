// Package epgstation talks to the EPGStation HTTP API: it lists recorded
// programs and streams video files down and up with byte-level progress.
package epgstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrMissingContentLength is returned when a download response does not
	// declare its size. Progress needs a total, so this is fatal.
	ErrMissingContentLength = errors.New("response has no content-length")

	// ErrShortBody is returned when the body ends before the declared length.
	ErrShortBody = errors.New("response body shorter than content-length")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client is bound to one EPGStation instance. It owns no connections itself;
// all requests go through the *http.Client given to NewClient, so the caller
// decides its lifetime (cmd/encoder creates one per run).
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a Client for baseURL (e.g. "http://192.168.0.17:8888").
// A nil httpClient gets a fresh client with default settings.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{base: u, http: httpClient}, nil
}

func (c *Client) endpoint(path string, query string) string {
	u := *c.base
	u.Path = path
	u.RawPath = ""
	u.RawQuery = query
	return u.String()
}

// QueryRecorded lists recorded programs matching q, paged by offset/limit.
func (c *Client) QueryRecorded(ctx context.Context, q RecordedQuery, offset, limit int) ([]Record, error) {
	ps := append(q.parameters(),
		param{"offset", strconv.Itoa(offset)},
		param{"limit", strconv.Itoa(limit)},
	)
	pairs := make([]string, 0, len(ps))
	for _, p := range ps {
		pairs = append(pairs, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/recorded", strings.Join(pairs, "&")), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query recorded: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return nil, err
	}

	var body recordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode recorded response: %w", err)
	}
	return body.Records, nil
}

func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Method: req.Method, URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
}
