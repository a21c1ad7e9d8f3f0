package model

import "time"

// Status is the lifecycle state of a task. The only transition exposed is
// pending -> completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Task is the domain model for a task entry. ID is assigned by the server.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    Status     `json:"status"`
	OwnerID   string     `json:"ownerId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Done is a shorthand for Status == StatusCompleted.
func (t Task) Done() bool { return t.Status == StatusCompleted }

// User is the cached identity of the session owner. The server is the
// source of truth; this copy is for display only.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
