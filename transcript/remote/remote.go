//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package remote implements a transcript source over the meeting
// recorder's GraphQL HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trpc.group/trpc-go/trpc-council-go/session"
	"trpc.group/trpc-go/trpc-council-go/transcript"
)

const (
	defaultTimeout = 10 * time.Second
	// maxResponseBytes bounds the response body; long recordings stay
	// well under this.
	maxResponseBytes = 8 << 20
)

// transcriptQuery pulls the fields the pipeline needs, nothing more.
const transcriptQuery = `query Transcript($transcriptId: String!) {
  transcript(id: $transcriptId) {
    title
    date
    participants
    sentences { speaker_name text start_time end_time }
  }
}`

// Client fetches transcripts from the recorder service.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ transcript.Source = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the given GraphQL endpoint.
func New(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data struct {
		Transcript *struct {
			Title        string   `json:"title"`
			Date         int64    `json:"date"`
			Participants []string `json:"participants"`
			Sentences    []struct {
				SpeakerName string  `json:"speaker_name"`
				Text        string  `json:"text"`
				StartTime   float64 `json:"start_time"`
				EndTime     float64 `json:"end_time"`
			} `json:"sentences"`
		} `json:"transcript"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch retrieves the meeting's metadata and ordered utterances.
func (c *Client) Fetch(ctx context.Context, meetingID string) (*session.Metadata, []session.Utterance, error) {
	body, err := json.Marshal(gqlRequest{
		Query:     transcriptQuery,
		Variables: map[string]any{"transcriptId": meetingID},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal transcript query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build transcript request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	rsp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch transcript %s: %w", meetingID, err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("fetch transcript %s: unexpected status %d", meetingID, rsp.StatusCode)
	}

	var parsed gqlResponse
	if err := json.NewDecoder(io.LimitReader(rsp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("decode transcript %s: %w", meetingID, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, nil, fmt.Errorf("fetch transcript %s: %s", meetingID, parsed.Errors[0].Message)
	}
	tr := parsed.Data.Transcript
	if tr == nil {
		return nil, nil, fmt.Errorf("transcript %s not found", meetingID)
	}

	md := &session.Metadata{
		Title:        tr.Title,
		Participants: tr.Participants,
	}
	if tr.Date > 0 {
		md.Timestamp = time.UnixMilli(tr.Date).UTC()
	}
	utterances := make([]session.Utterance, 0, len(tr.Sentences))
	for _, s := range tr.Sentences {
		utterances = append(utterances, session.Utterance{
			Speaker:  s.SpeakerName,
			Text:     s.Text,
			StartSec: s.StartTime,
			EndSec:   s.EndTime,
		})
	}
	return md, utterances, nil
}
