package realtime

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/feedsync/internal/model"
)

const maxSSELine = 1 << 20

// SSESource reads events from a text/event-stream endpoint. Each frame's data
// lines are joined and delivered as one payload; event names are ignored
// because the payload carries its own type.
type SSESource struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewSSEClient returns a client for long-lived event streams. Only the wait
// for response headers is bounded; the body may stay open indefinitely.
func NewSSEClient(headerTimeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: tr}
}

// NewSSESource creates a source for url. The client must not set a total
// timeout, the stream is long-lived. A nil client uses NewSSEClient with a
// 30s header timeout.
func NewSSESource(url, token string, client *http.Client, logger *slog.Logger) *SSESource {
	if client == nil {
		client = NewSSEClient(30 * time.Second)
	}
	return &SSESource{url: url, token: token, client: client, logger: logger}
}

func (s *SSESource) Subscribe(ctx context.Context, deliver func([]byte)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connecting to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d from event stream", resp.StatusCode),
		}
	}

	go func() {
		defer resp.Body.Close()
		if err := readFrames(bufio.NewScanner(resp.Body), deliver); err != nil && ctx.Err() == nil {
			s.logger.Warn("event stream ended", "url", s.url, "error", err)
		}
	}()

	return cancel, nil
}

// readFrames splits an event stream into frames and delivers each frame's data.
func readFrames(sc *bufio.Scanner, deliver func([]byte)) error {
	sc.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var data bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				deliver(bytes.Clone(data.Bytes()))
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by server")
}
