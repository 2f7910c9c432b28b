package models

import "time"

// EventType names a workflow event pushed to realtime subscribers.
type EventType string

const (
	EventPhotoUploaded     EventType = "photo.uploaded"
	EventPhotoUpdated      EventType = "photo.updated"
	EventAnalysisStarted   EventType = "photo.analysis_started"
	EventAnalysisCompleted EventType = "photo.analysis_completed"
	EventAnalysisFailed    EventType = "photo.analysis_failed"
	EventConsentRecorded   EventType = "photo.consent_recorded"
	EventPhotoPublished    EventType = "photo.published"
	EventPhotoRemoved      EventType = "photo.removed"
	EventSubjectRemoved    EventType = "photo.subject_removed"
)

// PhotoEvent is broadcast after each state change.
type PhotoEvent struct {
	Type      EventType   `json:"type"`
	PhotoID   string      `json:"photoId"`
	Status    PhotoStatus `json:"status,omitempty"`
	Photo     *Photo      `json:"photo,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
