//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package openai implements the capability set over OpenAI-compatible
// chat completions. Every role asks for strict JSON-schema output, so a
// well-behaved model can only answer in the step's typed contract.
// Transport failures classify retryable; schema violations are fatal.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-council-go/capability"
	"trpc.group/trpc-go/trpc-council-go/session"
)

// defaultModel is used when no model is configured.
const defaultModel = "gpt-4o-mini"

// options holds the configuration for the capability set.
type options struct {
	model         string
	apiKey        string
	baseURL       string
	openaiOptions []openaiopt.RequestOption
}

// Option configures the capability set.
type Option func(*options)

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithAPIKey sets the API key for the OpenAI client.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL sets the base URL for the OpenAI client, e.g. to point at
// a compatible gateway.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithOpenAIOptions appends raw request options passed through to the
// underlying client.
func WithOpenAIOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.openaiOptions = append(o.openaiOptions, opts...) }
}

// client is the shared completion transport behind all five roles.
type client struct {
	api   openai.Client
	model string
}

// New builds a capability set backed by chat completions.
func New(opts ...Option) *capability.Set {
	o := &options{model: defaultModel}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.openaiOptions...)
	c := &client{
		api:   openai.NewClient(clientOpts...),
		model: o.model,
	}
	return &capability.Set{
		Strategist: (*strategist)(c),
		Extractor:  (*extractor)(c),
		Critic:     (*critic)(c),
		Copywriter: (*copywriter)(c),
		Refiner:    (*refiner)(c),
	}
}

// complete runs one schema-constrained completion and decodes the answer
// into out.
func (c *client) complete(ctx context.Context, system, user, schemaName string, schema map[string]any, out any) error {
	rsp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return capability.Retryable(fmt.Errorf("chat completion: %w", err))
	}
	if len(rsp.Choices) == 0 {
		return capability.Retryable(fmt.Errorf("chat completion returned no choices"))
	}
	content := rsp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		// The model broke the schema contract; retrying the same prompt
		// against the same misbehaving endpoint will not fix it.
		return capability.Fatal(fmt.Errorf("decode %s output: %w", schemaName, err))
	}
	return nil
}

// renderTranscript flattens the utterances into the prompt form the
// roles share.
func renderTranscript(in *capability.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting: %s\n", in.Metadata.Title)
	if !in.Metadata.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", in.Metadata.Timestamp.Format("2006-01-02 15:04"))
	}
	if len(in.Metadata.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(in.Metadata.Participants, ", "))
	}
	b.WriteString("\nTranscript:\n")
	for _, u := range in.Transcript {
		fmt.Fprintf(&b, "[%.1fs] %s: %s\n", u.StartSec, u.Speaker, u.Text)
	}
	return b.String()
}

type strategist client

const strategistPrompt = `You are the strategist of a meeting intelligence council.
Classify the meeting and read the room: meeting type, overall tone,
sentiment, and your confidence between 0 and 1. Cite the transcript
timestamps that back your reading.`

// Analyze implements capability.Strategist.
func (s *strategist) Analyze(ctx context.Context, in *capability.Input) (*session.StrategistOutput, error) {
	out := &session.StrategistOutput{}
	err := (*client)(s).complete(ctx, strategistPrompt, renderTranscript(in),
		"strategist_output", strategistSchema, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type extractor client

const extractorPrompt = `You are the extractor of a meeting intelligence council.
Pull every concrete commitment (task, owner, due date), every metric
mentioned, and every decision made. Quote the verbatim transcript line as
evidence for each commitment. Never invent content that is not in the
transcript.`

// Extract implements capability.Extractor.
func (e *extractor) Extract(ctx context.Context, in *capability.Input) (*session.ExtractorOutput, error) {
	out := &session.ExtractorOutput{}
	err := (*client)(e).complete(ctx, extractorPrompt, renderTranscript(in),
		"extractor_output", extractorSchema, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type critic client

const criticPrompt = `You are the critic of a meeting intelligence council.
Validate two analyses of the same transcript: the strategist's context
read and the extractor's facts. Approve each only if it is grounded in
the transcript; otherwise reject it with actionable feedback for that
analyst.`

// Review implements capability.Critic.
func (c *critic) Review(ctx context.Context, in *capability.ReviewInput) (*session.CriticOutput, error) {
	var user strings.Builder
	user.WriteString(renderTranscript(&in.Input))
	user.WriteString("\nStrategist analysis:\n")
	writeJSON(&user, in.Strategist)
	user.WriteString("\nExtractor analysis:\n")
	writeJSON(&user, in.Extractor)

	out := &session.CriticOutput{}
	err := (*client)(c).complete(ctx, criticPrompt, user.String(), "critic_output", criticSchema, out)
	if err != nil {
		return nil, err
	}
	// Overall approval is derived, not trusted from the model.
	out.Approved = out.StrategistApproved && out.ExtractorApproved
	return out, nil
}

type copywriter client

const copywriterPrompt = `You are the copywriter of a meeting intelligence council.
Draft a concise follow-up email from the validated analysis: a subject
line and a body that lists decisions and action items with owners and due
dates. Professional, friendly, no preamble about being an AI.`

// Draft implements capability.Copywriter.
func (c *copywriter) Draft(ctx context.Context, in *capability.DraftInput) (*session.EmailDraft, error) {
	var user strings.Builder
	user.WriteString(renderTranscript(&in.Input))
	user.WriteString("\nStrategist analysis:\n")
	writeJSON(&user, in.Strategist)
	user.WriteString("\nExtractor analysis:\n")
	writeJSON(&user, in.Extractor)

	out := &session.EmailDraft{}
	err := (*client)(c).complete(ctx, copywriterPrompt, user.String(), "email_draft", draftSchema, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type refiner client

const refinerPrompt = `You are the refiner of a meeting intelligence council.
Rewrite the follow-up email to apply the reviewer's instructions. Keep
everything the reviewer did not ask to change; stay consistent with the
extracted facts.`

// Refine implements capability.Refiner.
func (r *refiner) Refine(ctx context.Context, in *capability.RefineInput) (*session.EmailDraft, error) {
	var user strings.Builder
	user.WriteString("Current draft:\n")
	writeJSON(&user, in.Draft)
	user.WriteString("\nExtracted facts:\n")
	writeJSON(&user, in.Extractor)
	fmt.Fprintf(&user, "\nReviewer instructions:\n%s\n", in.Instructions)

	out := &session.EmailDraft{}
	err := (*client)(r).complete(ctx, refinerPrompt, user.String(), "email_draft", draftSchema, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func writeJSON(b *strings.Builder, v any) {
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b.WriteString("(unavailable)\n")
		return
	}
	b.Write(enc)
	b.WriteString("\n")
}
