package db

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are idempotent DDL statements executed in order on startup.
// The engine owns every table here except users, which flow steps also
// write through attribute updates.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         VARCHAR(255) NOT NULL,
		attributes JSON         NOT NULL,
		PRIMARY KEY (id)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id         BIGINT       NOT NULL AUTO_INCREMENT,
		name       VARCHAR(255) NOT NULL,
		user_id    VARCHAR(255) NOT NULL,
		created_at DATETIME(3)  NOT NULL,
		attributes JSON         NOT NULL,
		PRIMARY KEY (id),
		KEY idx_events_user (user_id),
		KEY idx_events_name (name),
		CONSTRAINT fk_events_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS segments (
		id        VARCHAR(255) NOT NULL,
		evaluator TEXT         NOT NULL,
		PRIMARY KEY (id)
	)`,

	`CREATE TABLE IF NOT EXISTS segment_event_triggers (
		segment_id VARCHAR(255) NOT NULL,
		event      VARCHAR(255) NOT NULL,
		PRIMARY KEY (segment_id, event),
		CONSTRAINT fk_triggers_segment FOREIGN KEY (segment_id) REFERENCES segments (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS segment_memberships (
		user_id    VARCHAR(255) NOT NULL,
		segment_id VARCHAR(255) NOT NULL,
		PRIMARY KEY (user_id, segment_id),
		KEY idx_segmem_segment (segment_id),
		CONSTRAINT fk_segmem_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		CONSTRAINT fk_segmem_segment FOREIGN KEY (segment_id) REFERENCES segments (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS campaigns (
		id       VARCHAR(255)              NOT NULL,
		flow     MEDIUMTEXT                NOT NULL,
		behavior ENUM('static','dynamic')  NOT NULL,
		PRIMARY KEY (id)
	)`,

	`CREATE TABLE IF NOT EXISTS campaign_segments (
		campaign_id VARCHAR(255)              NOT NULL,
		segment_id  VARCHAR(255)              NOT NULL,
		kind        ENUM('include','exclude') NOT NULL,
		PRIMARY KEY (campaign_id, segment_id, kind),
		KEY idx_campseg_segment (segment_id),
		CONSTRAINT fk_campseg_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS campaign_memberships (
		user_id     VARCHAR(255) NOT NULL,
		campaign_id VARCHAR(255) NOT NULL,
		PRIMARY KEY (user_id, campaign_id),
		KEY idx_campmem_campaign (campaign_id),
		CONSTRAINT fk_campmem_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		CONSTRAINT fk_campmem_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS executions (
		user_id     VARCHAR(255) NOT NULL,
		campaign_id VARCHAR(255) NOT NULL,
		status      ENUM('pending','sleeping','running','completed','failed','terminated') NOT NULL,
		sleep_until DATETIME(3)  NOT NULL,
		error       TEXT         NULL,
		PRIMARY KEY (user_id, campaign_id),
		KEY idx_exec_due (status, sleep_until),
		CONSTRAINT fk_exec_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS execution_history (
		user_id     VARCHAR(255) NOT NULL,
		campaign_id VARCHAR(255) NOT NULL,
		step_index  INT          NOT NULL,
		attributes  JSON         NOT NULL,
		PRIMARY KEY (user_id, campaign_id, step_index),
		CONSTRAINT fk_hist_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS templates (
		id       VARCHAR(255) NOT NULL,
		subject  TEXT         NOT NULL,
		html     MEDIUMTEXT   NOT NULL,
		preamble TEXT         NOT NULL,
		PRIMARY KEY (id)
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id       VARCHAR(255) NOT NULL,
		event    VARCHAR(255) NOT NULL,
		subject  TEXT         NOT NULL,
		html     MEDIUMTEXT   NOT NULL,
		preamble TEXT         NOT NULL,
		PRIMARY KEY (id),
		KEY idx_transactions_event (event)
	)`,

	`CREATE TABLE IF NOT EXISTS email_providers (
		id           TINYINT      NOT NULL,
		config       JSON         NOT NULL,
		from_address VARCHAR(255) NOT NULL,
		PRIMARY KEY (id)
	)`,

	`CREATE TABLE IF NOT EXISTS configs (
		id          BIGINT      NOT NULL AUTO_INCREMENT,
		config_json MEDIUMTEXT  NOT NULL,
		created_at  DATETIME(3) NOT NULL,
		PRIMARY KEY (id),
		KEY idx_configs_created (created_at)
	)`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, pool *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := pool.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
