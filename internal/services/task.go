package services

import (
	"context"
	"strings"

	"github.com/taskdeck/apiserver/types"
)

// TaskRepository defines persistence operations for tasks. All lookups
// are owner-scoped.
type TaskRepository interface {
	GetByID(ctx context.Context, id, ownerID int) (types.Task, error)
	ListByOwner(ctx context.Context, ownerID int, opts types.TaskListOptions) ([]types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	Delete(ctx context.Context, id, ownerID int) error
}

// TaskUpdate is the typed allow-list for PATCH /tasks/{id}.
type TaskUpdate struct {
	Description *string
	Completed   *bool
}

// TaskService encapsulates task use-cases.
type TaskService struct {
	repo TaskRepository
}

func NewTaskService(repo TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

func (s *TaskService) Create(ctx context.Context, ownerID int, description string, completed bool) (types.Task, error) {
	return s.repo.Create(ctx, types.Task{
		Description: strings.TrimSpace(description),
		Completed:   completed,
		OwnerID:     ownerID,
	})
}

func (s *TaskService) Get(ctx context.Context, id, ownerID int) (types.Task, error) {
	return s.repo.GetByID(ctx, id, ownerID)
}

func (s *TaskService) List(ctx context.Context, ownerID int, opts types.TaskListOptions) ([]types.Task, error) {
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	return s.repo.ListByOwner(ctx, ownerID, opts)
}

// ApplyUpdate applies an allow-listed partial update to an owned task.
func (s *TaskService) ApplyUpdate(ctx context.Context, task types.Task, update TaskUpdate) (types.Task, error) {
	if update.Description != nil {
		task.Description = strings.TrimSpace(*update.Description)
	}
	if update.Completed != nil {
		task.Completed = *update.Completed
	}
	return s.repo.Update(ctx, task)
}

func (s *TaskService) Delete(ctx context.Context, id, ownerID int) error {
	return s.repo.Delete(ctx, id, ownerID)
}
