//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-council-go/session"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassRetryable, ClassOf(errors.New("connection reset")))
	assert.Equal(t, ClassRetryable, ClassOf(Retryable(errors.New("rate limited"))))
	assert.Equal(t, ClassFatal, ClassOf(Fatal(errors.New("bad schema"))))

	wrapped := fmt.Errorf("invoke strategist: %w", Fatal(errors.New("no api key")))
	assert.Equal(t, ClassFatal, ClassOf(wrapped), "classification must survive wrapping")
	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsFatal(nil))
}

func TestTimeout(t *testing.T) {
	assert.True(t, Timeout(context.DeadlineExceeded))
	assert.True(t, Timeout(fmt.Errorf("call failed: %w", context.DeadlineExceeded)))
	assert.True(t, Timeout(timeoutErr{}))
	assert.False(t, Timeout(errors.New("boom")))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Retryable(base)
	require.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "retryable")
	assert.Contains(t, Fatal(base).Error(), "fatal")
}

type fakeStrategist struct{}

func (fakeStrategist) Analyze(context.Context, *Input) (*session.StrategistOutput, error) {
	return &session.StrategistOutput{}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(context.Context, *Input) (*session.ExtractorOutput, error) {
	return &session.ExtractorOutput{}, nil
}

type fakeCritic struct{}

func (fakeCritic) Review(context.Context, *ReviewInput) (*session.CriticOutput, error) {
	return &session.CriticOutput{}, nil
}

type fakeCopywriter struct{}

func (fakeCopywriter) Draft(context.Context, *DraftInput) (*session.EmailDraft, error) {
	return &session.EmailDraft{}, nil
}

type fakeRefiner struct{}

func (fakeRefiner) Refine(context.Context, *RefineInput) (*session.EmailDraft, error) {
	return &session.EmailDraft{}, nil
}

func TestSetValidate(t *testing.T) {
	var nilSet *Set
	require.Error(t, nilSet.Validate())

	full := &Set{
		Strategist: fakeStrategist{},
		Extractor:  fakeExtractor{},
		Critic:     fakeCritic{},
		Copywriter: fakeCopywriter{},
		Refiner:    fakeRefiner{},
	}
	require.NoError(t, full.Validate())

	missing := *full
	missing.Critic = nil
	require.Error(t, missing.Validate())
}
