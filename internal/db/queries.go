package db

const (
	InsertJobEvent = `
		INSERT INTO job_events (kind, job_name, from_state, to_state, reason, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	SelectJobEvents = `
		SELECT id, kind, job_name, from_state, to_state, reason, occurred_at, recorded_at
		FROM job_events
	`

	CountJobEvents = `SELECT COUNT(*) FROM job_events`

	DeleteJobEventsBefore = `DELETE FROM job_events WHERE occurred_at < ?`
)

const (
	GetAppliedMigrations = `
		SELECT version FROM schema_migrations
	`
)
