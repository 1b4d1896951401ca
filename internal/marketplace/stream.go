package marketplace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/andywolf/wikiagent/internal/version"
)

// maxFrameLine bounds a single stream line.
const maxFrameLine = 1024 * 1024

// Frame is one blank-line-delimited record of an event stream.
type Frame struct {
	Event string
	Data  string
}

// FrameReader splits an event stream into frames.
type FrameReader struct {
	scanner *bufio.Scanner
}

// NewFrameReader reads frames from r.
func NewFrameReader(r io.Reader) *FrameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLine)
	return &FrameReader{scanner: scanner}
}

// Next returns the next frame that carries data. It returns io.EOF when the
// stream ends.
func (fr *FrameReader) Next() (Frame, error) {
	var frame Frame
	var data []string

	for fr.scanner.Scan() {
		line := strings.TrimRight(fr.scanner.Text(), "\r")

		if line == "" {
			if len(data) > 0 {
				frame.Data = strings.Join(data, "\n")
				return frame, nil
			}
			frame = Frame{}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			frame.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}

	if err := fr.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if len(data) > 0 {
		frame.Data = strings.Join(data, "\n")
		return frame, nil
	}
	return Frame{}, io.EOF
}

// StreamHandler receives decoded stream events. A returned error is
// reported through onError and does not stop the stream.
type StreamHandler func(ctx context.Context, event StreamEvent) error

// Subscribe opens the question notification stream and dispatches events
// until the stream ends, ctx is cancelled, or the connection fails. Frames
// that do not decode are passed to onError and skipped.
func (c *Client) Subscribe(ctx context.Context, handle StreamHandler, onError func(error)) error {
	if c.baseURL == "" {
		return fmt.Errorf("subscribe: marketplace base URL is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events/questions", nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Op: "subscribe", Message: err.Error(), kind: ErrUnavailable}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newError("subscribe", resp.StatusCode, errorMessage(raw))
	}

	reader := NewFrameReader(resp.Body)
	for {
		frame, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF {
				return ErrStreamClosed
			}
			return &Error{Op: "subscribe", Message: err.Error(), kind: ErrUnavailable}
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(frame.Data), &event); err != nil {
			reportStreamError(onError, fmt.Errorf("skip malformed frame: %w", err))
			continue
		}
		if event.Type == "" {
			event.Type = frame.Event
		}

		if err := handle(ctx, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			reportStreamError(onError, err)
		}
	}
}

func reportStreamError(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}

// ListPosts returns every known question, oldest first.
func (c *Client) ListPosts(ctx context.Context) ([]Question, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("list posts: marketplace base URL is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/posts", nil)
	if err != nil {
		return nil, fmt.Errorf("create list posts request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: "list_posts", Message: err.Error(), kind: ErrUnavailable}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newError("list_posts", resp.StatusCode, errorMessage(raw))
	}

	var body struct {
		Posts []Question `json:"posts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	sort.SliceStable(body.Posts, func(i, j int) bool {
		return body.Posts[i].CreatedAt.Before(body.Posts[j].CreatedAt)
	})
	return body.Posts, nil
}
