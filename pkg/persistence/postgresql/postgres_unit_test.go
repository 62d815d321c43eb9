package postgresql

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceMigrations(t *testing.T) {
	migrations := sequenceMigrations()

	migration, exists := migrations[1]
	assert.True(t, exists, "Migration version 1 should exist")
	assert.Contains(t, migration, "CREATE TABLE IF NOT EXISTS sequences")
	assert.Contains(t, migration, "CREATE TABLE IF NOT EXISTS sequence_steps")
	assert.Contains(t, migration, "idx_sequences_recipient_campaign_live",
		"uniqueness of live (recipient, campaign) pairs must be a store constraint")
	assert.Contains(t, migration, "WHERE archived_at IS NULL")
	assert.Contains(t, migration, "idx_sequence_steps_due")
}

func TestNewPersistence_InvalidURL(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persistence, err := NewPersistence(ctx, logger, "not-a-valid-url")
	assert.Error(t, err)
	assert.Nil(t, persistence)
}
