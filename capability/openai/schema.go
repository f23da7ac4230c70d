//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package openai

// JSON schemas for each role's structured output. They mirror the typed
// outputs in the session package; strict mode requires every property to
// be listed in required.

var strategistSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"meeting_type", "tone", "sentiment", "confidence", "evidence_timestamps"},
	"properties": map[string]any{
		"meeting_type":        map[string]any{"type": "string"},
		"tone":                map[string]any{"type": "string"},
		"sentiment":           map[string]any{"type": "string"},
		"confidence":          map[string]any{"type": "number"},
		"evidence_timestamps": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var extractorSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"commitments", "metrics", "decisions"},
	"properties": map[string]any{
		"commitments": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"task", "owner", "due", "evidence"},
				"properties": map[string]any{
					"task":     map[string]any{"type": "string"},
					"owner":    map[string]any{"type": "string"},
					"due":      map[string]any{"type": "string"},
					"evidence": map[string]any{"type": "string"},
				},
			},
		},
		"metrics": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"decisions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var criticSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"strategist_approved", "extractor_approved", "strategist_feedback", "extractor_feedback"},
	"properties": map[string]any{
		"strategist_approved": map[string]any{"type": "boolean"},
		"extractor_approved":  map[string]any{"type": "boolean"},
		"strategist_feedback": map[string]any{"type": "string"},
		"extractor_feedback":  map[string]any{"type": "string"},
	},
}

var draftSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"subject", "body"},
	"properties": map[string]any{
		"subject": map[string]any{"type": "string"},
		"body":    map[string]any{"type": "string"},
	},
}
