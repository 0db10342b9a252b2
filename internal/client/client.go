// Package client consumes the live event source over HTTP: a
// text/event-stream of JSON envelopes per session, plus a REST fetch
// for persisted conversation records when the caller wants the remote
// copy instead of the local store.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"seam/internal/logging"
	"seam/internal/types"
)

const DefaultBaseURL = "http://127.0.0.1:7433"

type Client struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger
}

func New(baseURL string, logger logging.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		logger:  logger,
	}
}

// EventStream opens the live envelope stream for one session. Envelopes
// arrive on the returned channel until the stream ends or the cancel
// func is called; the channel closes in either case. Malformed data
// payloads are logged and skipped, never fatal.
func (c *Client) EventStream(ctx context.Context, sessionID string) (<-chan types.StreamEnvelope, func(), error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, fmt.Errorf("session id is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	url := fmt.Sprintf("%s/v1/sessions/%s/events?follow=1", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		cancel()
		return nil, nil, decodeAPIError(resp)
	}

	ch := make(chan types.StreamEnvelope, 256)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		start := time.Now()
		count := 0
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var dataLines []string

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if len(dataLines) == 0 {
					continue
				}
				payload := strings.Join(dataLines, "\n")
				dataLines = dataLines[:0]
				var env types.StreamEnvelope
				if err := json.Unmarshal([]byte(payload), &env); err != nil {
					c.logger.Warn("malformed stream payload skipped",
						logging.F("session_id", sessionID),
						logging.F("error", err),
					)
					continue
				}
				if env.SessionID == "" {
					env.SessionID = sessionID
				}
				select {
				case ch <- env:
					count++
				case <-ctx.Done():
					return
				}
				continue
			}
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Warn("event stream scan error",
				logging.F("session_id", sessionID),
				logging.F("error", err),
			)
		}
		c.logger.Debug("event stream closed",
			logging.F("session_id", sessionID),
			logging.F("envelopes", count),
			logging.F("duration", time.Since(start)),
		)
	}()

	return ch, cancel, nil
}

// Records fetches the persisted conversation records for a session.
func (c *Client) Records(ctx context.Context, sessionID string) ([]types.Record, error) {
	url := fmt.Sprintf("%s/v1/sessions/%s/records", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}
	var records []types.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		message = payload.Error
		if message == "" {
			message = payload.Message
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	return &apiError{Status: resp.StatusCode, Message: message}
}
