package repository

// schema creates every table the SQL store uses. Statements run one at a time
// so the same list works for sqlite and postgres. Timestamps are unix
// nanoseconds so values round-trip exactly on both engines.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS scoring_models (
		domain                TEXT             NOT NULL,
		version               BIGINT           NOT NULL,
		weights               TEXT             NOT NULL,
		training_sample_count BIGINT           NOT NULL,
		accuracy_estimate     DOUBLE PRECISION NOT NULL,
		metrics               TEXT             NOT NULL,
		parent_version        BIGINT           NOT NULL,
		run_id                TEXT             NOT NULL,
		degenerate            BOOLEAN          NOT NULL,
		created_at            BIGINT           NOT NULL,
		PRIMARY KEY (domain, version)
	)`,
	`CREATE TABLE IF NOT EXISTS active_models (
		domain   TEXT   PRIMARY KEY,
		version  BIGINT NOT NULL,
		revision BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS activation_log (
		id           TEXT   PRIMARY KEY,
		domain       TEXT   NOT NULL,
		seq          BIGINT NOT NULL,
		from_version BIGINT NOT NULL,
		to_version   BIGINT NOT NULL,
		action       TEXT   NOT NULL,
		at           BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS activation_log_domain_seq ON activation_log (domain, seq)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id                        TEXT             PRIMARY KEY,
		domain                    TEXT             NOT NULL,
		candidate_pair_id         TEXT             NOT NULL,
		requester_id              TEXT             NOT NULL,
		candidate_id              TEXT             NOT NULL,
		scoring_event_id          TEXT             NOT NULL,
		feature_vector            TEXT             NOT NULL,
		score_at_decision         DOUBLE PRECISION NOT NULL,
		model_version_at_decision BIGINT           NOT NULL,
		decision                  TEXT             NOT NULL,
		reason                    TEXT,
		created_at                BIGINT           NOT NULL,
		consumed_by_version       BIGINT           NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS feedback_domain_created ON feedback (domain, created_at)`,
	`CREATE TABLE IF NOT EXISTS scoring_events (
		id             TEXT             PRIMARY KEY,
		domain         TEXT             NOT NULL,
		requester_id   TEXT             NOT NULL,
		candidate_id   TEXT             NOT NULL,
		feature_vector TEXT             NOT NULL,
		score          DOUBLE PRECISION NOT NULL,
		model_version  BIGINT           NOT NULL,
		rank_position  BIGINT           NOT NULL,
		created_at     BIGINT           NOT NULL
	)`,
}
