package types

import "time"

// Task is a single to-do item owned by exactly one user.
type Task struct {
	// ID is the unique identifier of the task.
	ID int `json:"id" db:"id"`

	// Description is the free-form text of the task.
	Description string `json:"description" db:"description"`

	// Completed reports whether the task is done.
	Completed bool `json:"completed" db:"completed"`

	// OwnerID references the owning user. Immutable after creation.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// CreatedAt is the timestamp when the task was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the task.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskListOptions carries the normalized list query: an optional completed
// filter, limit/skip pagination, and a single sort column with direction.
type TaskListOptions struct {
	Completed *bool
	Limit     int
	Skip      int
	SortBy    string
	SortDesc  bool
}
