//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	st, err := New("meeting-1", Metadata{Title: "Q4 Planning"}, []Utterance{
		{Speaker: "Alice", Text: "I will send the report by Friday."},
	})
	require.NoError(t, err)
	assert.Equal(t, "meeting-1", st.SessionID)
	assert.Equal(t, StatusPending, st.Status)
	assert.Len(t, st.Transcript, 1)
	assert.NotNil(t, st.RetryCounts)
	assert.False(t, st.CreatedAt.IsZero())
}

func TestNew_RequiresSessionID(t *testing.T) {
	_, err := New("", Metadata{}, nil)
	require.ErrorIs(t, err, ErrSessionIDRequired)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusActiveReview, true},
		{StatusPending, StatusApproved, false},
		{StatusPending, StatusPending, false},
		{StatusActiveReview, StatusActiveReview, true},
		{StatusActiveReview, StatusApproved, true},
		{StatusActiveReview, StatusPending, false},
		{StatusApproved, StatusActiveReview, false},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusApproved, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
	assert.True(t, StatusApproved.Terminal())
	assert.False(t, StatusActiveReview.Terminal())
}

func TestClone_Isolation(t *testing.T) {
	st, err := New("meeting-2", Metadata{Participants: []string{"Alice", "Bob"}}, []Utterance{
		{Speaker: "Bob", Text: "Budget is $100k."},
	})
	require.NoError(t, err)
	st.Strategist = &StrategistOutput{Tone: "Professional", EvidenceTimestamps: []string{"[0]"}}
	st.Extractor = &ExtractorOutput{
		Commitments: []Commitment{{Task: "Send report", Owner: "Alice", Due: "TBD"}},
		Metrics:     map[string]string{"budget": "$100k"},
	}
	st.SetRetryCount("extractor", 1)

	cp := st.Clone()
	cp.Strategist.Tone = "Urgent"
	cp.Extractor.Commitments[0].Owner = "Bob"
	cp.Extractor.Metrics["budget"] = "$10k"
	cp.SetRetryCount("extractor", 2)
	cp.Transcript[0].Text = "changed"
	cp.Metadata.Participants[0] = "Mallory"

	assert.Equal(t, "Professional", st.Strategist.Tone)
	assert.Equal(t, "Alice", st.Extractor.Commitments[0].Owner)
	assert.Equal(t, "$100k", st.Extractor.Metrics["budget"])
	assert.Equal(t, 1, st.RetryCount("extractor"))
	assert.Equal(t, "Budget is $100k.", st.Transcript[0].Text)
	assert.Equal(t, "Alice", st.Metadata.Participants[0])
}

func TestApply_MergesOnlySetFields(t *testing.T) {
	st, err := New("meeting-3", Metadata{}, nil)
	require.NoError(t, err)
	st.Strategist = &StrategistOutput{Tone: "Professional"}

	st.Apply(&Delta{Draft: &EmailDraft{Subject: "Follow-up", Body: "Hi all"}})

	assert.Equal(t, "Professional", st.Strategist.Tone, "unset delta fields must not clear state")
	require.NotNil(t, st.Draft)
	assert.Equal(t, "Follow-up", st.Draft.Subject)
	assert.Equal(t, StatusPending, st.Status, "empty delta status leaves status untouched")

	st.Apply(&Delta{Status: StatusActiveReview})
	assert.Equal(t, StatusActiveReview, st.Status)

	st.Apply(nil)
	assert.Equal(t, StatusActiveReview, st.Status)
}

func TestApply_DropsForbiddenStatus(t *testing.T) {
	st, err := New("meeting-4", Metadata{}, nil)
	require.NoError(t, err)

	// pending cannot close without going through review.
	st.Apply(&Delta{Status: StatusApproved})
	assert.Equal(t, StatusPending, st.Status)

	st.Apply(&Delta{Status: StatusActiveReview})
	st.Apply(&Delta{Status: StatusApproved})
	require.Equal(t, StatusApproved, st.Status)

	// Nothing leaves approved.
	st.Apply(&Delta{Status: StatusActiveReview, Draft: &EmailDraft{Subject: "late"}})
	assert.Equal(t, StatusApproved, st.Status)
	require.NotNil(t, st.Draft, "non-status fields still merge")
}
