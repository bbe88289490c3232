package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

func messageScan(id string, role domain.Role, text string, meta []byte, at time.Time) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "u1"
		*(dest[2].(*string)) = "s1"
		*(dest[3].(*string)) = string(role)
		*(dest[4].(*string)) = text
		*(dest[5].(*[]byte)) = meta
		*(dest[6].(*time.Time)) = at
		return nil
	}
}

func TestSessionRepo_Append_GeneratesULID(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewSessionRepo(pool)

	id, err := repo.Append(context.Background(), domain.Message{
		UserID:    "u1",
		SessionID: "s1",
		Role:      domain.RoleUser,
		Text:      "find me a backend job",
	})
	require.NoError(t, err)
	assert.Len(t, id, 26)
	require.Len(t, pool.execArgs, 1)
	assert.Equal(t, id, pool.execArgs[0][0])
	assert.Nil(t, pool.execArgs[0][5])
}

func TestSessionRepo_Append_MarshalsMetadata(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewSessionRepo(pool)

	m := domain.Message{
		UserID:    "u1",
		SessionID: "s1",
		Role:      domain.RoleAssistant,
		Text:      "found 2 jobs",
		Metadata: &domain.MessageMetadata{
			Type:       domain.MetaJobResults,
			JobResults: &domain.JobResultsMeta{Query: "golang backend", JobIDs: []string{"j1", "j2"}},
		},
	}
	_, err := repo.Append(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, pool.execArgs, 1)
	raw, ok := pool.execArgs[0][5].([]byte)
	require.True(t, ok)
	var got domain.MessageMetadata
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, domain.MetaJobResults, got.Type)
	require.NotNil(t, got.JobResults)
	assert.Equal(t, []string{"j1", "j2"}, got.JobResults.JobIDs)
}

func TestSessionRepo_Append_RejectsInvalid(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewSessionRepo(pool)

	// metadata on a user message violates the session log invariant
	_, err := repo.Append(context.Background(), domain.Message{
		UserID:    "u1",
		SessionID: "s1",
		Role:      domain.RoleUser,
		Metadata: &domain.MessageMetadata{
			Type:       domain.MetaJobResults,
			JobResults: &domain.JobResultsMeta{},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, pool.execSQL)
}

func TestSessionRepo_Append_DBError(t *testing.T) {
	pool := &poolStub{execErr: assert.AnError}
	repo := postgres.NewSessionRepo(pool)

	_, err := repo.Append(context.Background(), domain.Message{UserID: "u1", SessionID: "s1", Role: domain.RoleUser, Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=session.append")
}

func TestSessionRepo_History_OldestFirst(t *testing.T) {
	now := time.Now().UTC()
	// the query returns newest first; History flips to chronological
	rows := &rowsStub{scans: []func(dest ...any) error{
		messageScan("01B", domain.RoleAssistant, "second", nil, now),
		messageScan("01A", domain.RoleUser, "first", nil, now.Add(-time.Minute)),
	}}
	pool := &poolStub{rows: rows}
	repo := postgres.NewSessionRepo(pool)

	msgs, err := repo.History(context.Background(), "u1", "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
}

func TestSessionRepo_History_QueryError(t *testing.T) {
	pool := &poolStub{queryErr: assert.AnError}
	repo := postgres.NewSessionRepo(pool)

	_, err := repo.History(context.Background(), "u1", "s1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=session.history")
}

func TestSessionRepo_History_ScanError(t *testing.T) {
	rows := &rowsStub{
		scans:   []func(dest ...any) error{messageScan("01A", domain.RoleUser, "x", nil, time.Now())},
		scanErr: assert.AnError,
	}
	pool := &poolStub{rows: rows}
	repo := postgres.NewSessionRepo(pool)

	_, err := repo.History(context.Background(), "u1", "s1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=session.history")
}

func TestSessionRepo_RecentAssistantMetadata(t *testing.T) {
	meta, err := json.Marshal(domain.MessageMetadata{
		Type:        domain.MetaEmailReview,
		EmailReview: &domain.EmailReviewMeta{ApplicationID: "app-1", Subject: "Application", Recipient: "hr@acme.com"},
	})
	require.NoError(t, err)
	rows := &rowsStub{scans: []func(dest ...any) error{
		messageScan("01B", domain.RoleAssistant, "email draft ready", meta, time.Now().UTC()),
	}}
	pool := &poolStub{rows: rows}
	repo := postgres.NewSessionRepo(pool)

	msgs, err := repo.RecentAssistantMetadata(context.Background(), "u1", "s1", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Metadata)
	assert.Equal(t, domain.MetaEmailReview, msgs[0].Metadata.Type)
	assert.Equal(t, "app-1", msgs[0].Metadata.EmailReview.ApplicationID)
	require.Len(t, pool.querySQL, 1)
	assert.Contains(t, pool.querySQL[0], "role='assistant'")
	assert.Contains(t, pool.querySQL[0], "metadata IS NOT NULL")
}
