package datamodels

import (
	"time"

	"github.com/google/uuid"
)

// FailureEvent is published once per device that could not be inspected.
type FailureEvent struct {
	RunID   uuid.UUID `json:"runid"`
	Host    string    `json:"host"`
	Address string    `json:"ip"`
	Kind    string    `json:"kind"`
	Reason  string    `json:"reason"`
	Time    time.Time `json:"time"`
}

// SummaryEvent is published once when a run has joined all its tasks.
type SummaryEvent struct {
	RunID          uuid.UUID `json:"runid"`
	Started        time.Time `json:"started"`
	Devices        int       `json:"devices"`
	Connected      int       `json:"connected"`
	Partial        int       `json:"partial"`
	Failures       int       `json:"failures"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	OutputDir      string    `json:"output_dir"`
}
