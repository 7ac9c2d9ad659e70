package db

import (
	"time"
)

type JobEvent struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	JobName    string    `json:"job_name"`
	FromState  string    `json:"from"`
	ToState    string    `json:"to"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"timestamp"`
	RecordedAt time.Time `json:"recorded_at"`
}

type EventFilter struct {
	JobName string
	Kind    string
	Limit   int
	Offset  int
}
