// Package source opens profiler inputs and materializes them as lines.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultTimeout bounds HTTP fetches when the Opener has no timeout.
const DefaultTimeout = 60 * time.Second

// maxLine is the longest line ReadLines accepts.
const maxLine = 64 << 20

// Opener resolves input locations. The zero value reads stdin from os.Stdin
// and fetches with http.DefaultClient.
type Opener struct {
	Client  *http.Client
	Timeout time.Duration
	Stdin   io.Reader
}

// Open returns a reader for location: "" or "-" is stdin, http(s) URLs are
// fetched with GET, file:// URLs and anything else are local paths. The
// caller closes the reader.
func (o Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "" || location == "-":
		in := o.Stdin
		if in == nil {
			in = os.Stdin
		}
		return io.NopCloser(in), nil
	case hasScheme(location, "http://"), hasScheme(location, "https://"):
		return o.fetch(ctx, location)
	case hasScheme(location, "file://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", location, err)
		}
		return openFile(u.Path)
	default:
		return openFile(location)
	}
}

func hasScheme(s, scheme string) bool {
	return len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme)
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// fetch issues a GET and hands back the body. Non-2xx responses are errors
// carrying the status and up to 4KB of body.
func (o Opener) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "dqprobe/1.0")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &cancelBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelBody releases the request context when the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// ReadLines reads r to EOF and returns its lines without "\n" or "\r\n"
// terminators.
func ReadLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return lines, nil
}

// ReadAllLines opens location and reads all its lines.
func (o Opener) ReadAllLines(ctx context.Context, location string) ([]string, error) {
	rc, err := o.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadLines(rc)
}
