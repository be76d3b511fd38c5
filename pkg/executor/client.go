// Package executor is the client for the external execution service: run
// creation, status, cancellation and the per-run server-sent log stream.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"weave/pkg/run"
)

// Client talks to one executor service instance.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClientParams contains configuration for creating a Client.
type NewClientParams struct {
	BaseURL string
	APIKey  string
	// Timeout bounds non-streaming requests. Zero means 30s.
	Timeout time.Duration
}

// NewClient creates an executor client.
func NewClient(params NewClientParams) *Client {
	timeout := params.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(params.BaseURL, "/"),
		apiKey:  params.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// CreateRun submits compiled source for execution and returns the new run.
func (c *Client) CreateRun(ctx context.Context, compositionID string, code string) (run.Run, error) {
	body := map[string]string{
		"composition_id": compositionID,
		"code":           code,
	}
	var out run.Run
	if err := c.doJSON(ctx, http.MethodPost, "/api/runs", body, &out); err != nil {
		return run.Run{}, fmt.Errorf("create run: %w", err)
	}
	return out, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (run.Run, error) {
	var out run.Run
	if err := c.doJSON(ctx, http.MethodGet, "/api/runs/"+runID, nil, &out); err != nil {
		return run.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return out, nil
}

// CancelRun requests cancellation. The returned run carries whatever status
// the executor reports; the caller must not assume the run is cancelled.
func (c *Client) CancelRun(ctx context.Context, runID string) (run.Run, error) {
	var out run.Run
	if err := c.doJSON(ctx, http.MethodPost, "/api/runs/"+runID+"/cancel", nil, &out); err != nil {
		return run.Run{}, fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, &apiErr); err == nil {
			if apiErr.Error != "" {
				return fmt.Errorf("executor returned %d: %s", resp.StatusCode, apiErr.Error)
			}
			if apiErr.Message != "" {
				return fmt.Errorf("executor returned %d: %s", resp.StatusCode, apiErr.Message)
			}
		}
		return fmt.Errorf("executor returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// logEventPayload is the wire shape of a "log" event's data field.
type logEventPayload struct {
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsComplete bool      `json:"is_complete"`
}

// completeEventPayload is the wire shape of the terminal "complete" event.
type completeEventPayload struct {
	Status run.Status `json:"status"`
}

// Subscribe opens the server-sent event stream for a run. The returned
// channel delivers log and complete events and closes when the stream ends:
// after the complete event, on transport failure, or when ctx is cancelled.
// It implements run.StreamSource.
func (c *Client) Subscribe(ctx context.Context, runID string) (<-chan run.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/runs/"+runID+"/logs", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	// The stream outlives any request timeout; rely on ctx for teardown.
	streamClient := &http.Client{Transport: c.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("executor returned %d for log stream", resp.StatusCode)
	}

	events := make(chan run.Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readEventStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// readEventStream parses text/event-stream framing: "event:" and "data:"
// lines accumulate until a blank line dispatches the event.
func readEventStream(ctx context.Context, body io.Reader, events chan<- run.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder

	dispatch := func() bool {
		defer func() {
			eventName = ""
			data.Reset()
		}()
		if data.Len() == 0 {
			return true
		}
		switch eventName {
		case "log", "":
			var payload logEventPayload
			if err := json.Unmarshal([]byte(data.String()), &payload); err != nil {
				return true
			}
			select {
			case events <- run.Event{
				Type:       run.EventLog,
				Content:    payload.Content,
				Timestamp:  payload.Timestamp,
				IsComplete: payload.IsComplete,
			}:
			case <-ctx.Done():
				return false
			}
		case "complete":
			var payload completeEventPayload
			if err := json.Unmarshal([]byte(data.String()), &payload); err != nil {
				return true
			}
			select {
			case events <- run.Event{Type: run.EventComplete, Status: payload.Status}:
			case <-ctx.Done():
			}
			return false
		}
		return true
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !dispatch() {
				return
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteString("\n")
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
