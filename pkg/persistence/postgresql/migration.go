package postgresql

// sequenceMigrations returns the schema migrations for sequence storage.
//
// The partial unique index on (recipient_id, campaign_id) WHERE archived_at
// IS NULL is the store-level uniqueness constraint behind CreateIfAbsent:
// duplicate concurrent triggers race on the index, not on application reads.
func sequenceMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS sequences (
				id TEXT PRIMARY KEY,
				recipient_id TEXT NOT NULL,
				campaign_id TEXT NOT NULL,
				segment TEXT NOT NULL,
				anchor_time TIMESTAMP WITH TIME ZONE NOT NULL,
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_sequences_recipient_campaign_live
				ON sequences (recipient_id, campaign_id)
				WHERE archived_at IS NULL;

			CREATE TABLE IF NOT EXISTS sequence_steps (
				sequence_id TEXT NOT NULL REFERENCES sequences(id),
				step_number INTEGER NOT NULL,
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				sent_at TIMESTAMP WITH TIME ZONE,
				failed_at TIMESTAMP WITH TIME ZONE,
				failure_reason TEXT NOT NULL DEFAULT '',
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				dispatched_at TIMESTAMP WITH TIME ZONE,
				provider_message_id TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (sequence_id, step_number)
			);

			CREATE INDEX IF NOT EXISTS idx_sequence_steps_due
				ON sequence_steps (scheduled_at)
				WHERE sent_at IS NULL AND failed_at IS NULL;
		`,
	}
}
