package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/events"
)

const reconnectDelay = 2 * time.Second

// Events opens one event stream. The channel is closed when the stream
// ends or ctx is done.
func (c *Client) Events(ctx context.Context) (<-chan events.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, newAPIError(resp.StatusCode, b)
	}

	ch := make(chan events.Event, events.SubscriberBuffer)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		err := readEvents(resp.Body, func(ev events.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()
	return ch, nil
}

// SubscribeEvents streams daemon events until ctx is done, reconnecting
// when the daemon restarts.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, events.SubscriberBuffer)
	go func() {
		defer close(out)
		for {
			ch, err := c.Events(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logrus.WithError(err).Debug("failed to subscribe to events, retrying")
			} else {
				for ev := range ch {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
	return out
}

// readEvents parses a text/event-stream body and calls emit per event
// until emit returns false or the body ends. An event is dispatched on its
// terminating blank line; one cut off by the end of the body is dropped.
func readEvents(r io.Reader, emit func(events.Event) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		name string
		data strings.Builder
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name == "" && data.Len() == 0 {
				continue
			}
			ev := events.Event{Name: name, Data: []byte(strings.TrimSuffix(data.String(), "\n"))}
			name = ""
			data.Reset()
			if !emit(ev) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				name = value
			case "data":
				data.WriteString(value)
				data.WriteString("\n")
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("stream closed by daemon")
}
