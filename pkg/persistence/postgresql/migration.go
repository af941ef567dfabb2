package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Automation documents keyed per app, revision checked on every write
			CREATE TABLE automations (
				app_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				rev VARCHAR(64) NOT NULL,
				doc JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (app_id, id)
			);

			CREATE INDEX idx_automations_trigger ON automations((doc->'definition'->'trigger'->>'stepId'));

			CREATE TABLE webhooks (
				app_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				doc JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (app_id, id)
			);
		`,
		2: `
			-- Append-only history of manual test runs
			CREATE TABLE test_history (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(255) NOT NULL,
				app_id VARCHAR(255) NOT NULL,
				automation_id VARCHAR(255) NOT NULL,
				record JSONB NOT NULL,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_test_history_automation ON test_history(app_id, automation_id, seq DESC);
		`,
	}
}
