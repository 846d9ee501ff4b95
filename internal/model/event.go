package model

import (
	"time"

	"github.com/google/uuid"
)

var validLevels = map[string]bool{
	"fatal":   true,
	"error":   true,
	"warning": true,
	"info":    true,
	"debug":   true,
}

// IsValidLevel reports whether level is a known event level.
func IsValidLevel(level string) bool {
	return validLevels[level]
}

type Event struct {
	ID             uuid.UUID         `json:"id"`
	ProjectID      int64             `json:"project_id"`
	GroupID        int64             `json:"group_id"`
	Message        string            `json:"message"`
	Level          string            `json:"level"`
	Platform       string            `json:"platform"`
	Culprit        string            `json:"culprit"`
	ExceptionType  string            `json:"exception_type"`
	ExceptionValue string            `json:"exception_value"`
	Fingerprint    []string          `json:"fingerprint"`
	Tags           map[string]string `json:"tags"`
	Release        string            `json:"release"`
	Environment    string            `json:"environment"`
	Received       time.Time         `json:"received"`
}

// Title is what a new group created from this event is called.
func (e *Event) Title() string {
	switch {
	case e.ExceptionType != "" && e.ExceptionValue != "":
		return e.ExceptionType + ": " + e.ExceptionValue
	case e.ExceptionType != "":
		return e.ExceptionType
	case e.Message != "":
		return e.Message
	default:
		return "<unlabeled event>"
	}
}

// IngestResult is returned for every accepted event.
type IngestResult struct {
	ID      uuid.UUID `json:"id"`
	GroupID int64     `json:"group_id"`
	IsNew   bool      `json:"is_new"`
}
