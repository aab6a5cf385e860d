// Package client talks to a roundtable server's one-turn endpoint.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/logger"
)

// TurnRequest mirrors the server's request body.
type TurnRequest struct {
	Goal             string                 `json:"goal"`
	CurrentAgent     string                 `json:"currentAgent"`
	PreviousMessages []conversation.Message `json:"previousMessages"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Turn asks the server for one agent turn and yields its messages as they
// stream in. Malformed events are logged and skipped.
func (c *Client) Turn(ctx context.Context, req TurnRequest) iter.Seq2[conversation.Message, error] {
	return func(yield func(conversation.Message, error) bool) {
		resp, err := c.post(ctx, req)
		if err != nil {
			yield(conversation.Message{}, err)
			return
		}
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			f, err := readFrame(reader)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(conversation.Message{}, apperr.Generation("client.Turn", err))
				return
			}

			switch f.event {
			case "message":
				var m conversation.Message
				if err := json.Unmarshal(f.data, &m); err != nil {
					logger.L.WarnContext(ctx, "skipping malformed event", "error", apperr.Parse("client.Turn", err))
					continue
				}
				if !yield(m, nil) {
					return
				}
			case "error":
				yield(conversation.Message{}, apperr.Generation("client.Turn", errors.New(errorText(f.data))))
				return
			case "done":
				return
			}
		}
	}
}

// Collect drains Turn into a slice.
func (c *Client) Collect(ctx context.Context, req TurnRequest) ([]conversation.Message, error) {
	var out []conversation.Message
	for m, err := range c.Turn(ctx, req) {
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, req TurnRequest) (*http.Response, error) {
	if req.PreviousMessages == nil {
		req.PreviousMessages = []conversation.Message{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/agents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperr.Generation("client.Turn", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	cause := fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, errorText(raw))
	if resp.StatusCode == http.StatusBadRequest {
		return nil, apperr.Validation("client.Turn", cause)
	}
	return nil, apperr.Generation("client.Turn", cause)
}

func errorText(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

type frame struct {
	event string
	data  []byte
}

// readFrame reads one SSE frame. Comments and retry lines are ignored.
func readFrame(reader *bufio.Reader) (frame, error) {
	var f frame
	var dataLines []string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && (f.event != "" || len(dataLines) > 0) {
				f.data = []byte(strings.Join(dataLines, "\n"))
				return f, nil
			}
			return f, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if f.event == "" && len(dataLines) == 0 {
				continue
			}
			f.data = []byte(strings.Join(dataLines, "\n"))
			return f, nil
		}
		switch {
		case strings.HasPrefix(line, ":"), strings.HasPrefix(line, "retry:"):
		case strings.HasPrefix(line, "event:"):
			f.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
