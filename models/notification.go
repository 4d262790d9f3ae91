package models

import "time"

type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Notification is an in-app message stored under a user.
type Notification struct {
	ID        string           `json:"id" firestore:"-"`
	Title     string           `json:"title" firestore:"title"`
	Message   string           `json:"message" firestore:"message"`
	Link      string           `json:"link" firestore:"link"`
	Type      NotificationType `json:"type" firestore:"type"`
	IsRead    bool             `json:"is_read" firestore:"is_read"`
	Timestamp time.Time        `json:"timestamp" firestore:"timestamp"`
}

// AuditEntry records who did what to which target.
type AuditEntry struct {
	ID         string    `json:"id" firestore:"-"`
	Timestamp  time.Time `json:"timestamp" firestore:"timestamp"`
	ActorEmail string    `json:"actor_email" firestore:"actor_email"`
	ActorRole  string    `json:"actor_role" firestore:"actor_role"`
	Action     string    `json:"action" firestore:"action"`
	TargetID   string    `json:"target_id" firestore:"target_id"`
	Details    string    `json:"details" firestore:"details"`
}
