//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package transcript is the boundary to the external transcript service.
// Ingestion events that carry no transcript are backfilled through a
// Source before the pipeline starts.
package transcript

import (
	"context"

	"trpc.group/trpc-go/trpc-council-go/session"
)

// Source fetches the transcript and metadata for a meeting id.
type Source interface {
	Fetch(ctx context.Context, meetingID string) (*session.Metadata, []session.Utterance, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, meetingID string) (*session.Metadata, []session.Utterance, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, meetingID string) (*session.Metadata, []session.Utterance, error) {
	return f(ctx, meetingID)
}
