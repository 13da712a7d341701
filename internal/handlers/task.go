package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// TaskHandler provides HTTP handlers for tasks. Every route requires an
// authenticated principal; ownership scoping happens in the queries.
type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// TaskRouter registers task routes on the given router.
func TaskRouter(r chi.Router, taskService *services.TaskService, authService *services.AuthService) {
	handler := NewTaskHandler(taskService)

	r.Use(RequireAuth(authService))
	r.Post("/", handler.CreateTask)
	r.Get("/", handler.ListTasks)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Patch("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
	})
}

type CreateTaskRequest struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	task, err := h.taskService.Create(r.Context(), principal.User.ID, req.Description, req.Completed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	opts, err := parseTaskListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := h.taskService.List(r.Context(), principal.User.ID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := h.taskService.Get(r.Context(), id, principal.User.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	update, err := parseTaskUpdate(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Get(r.Context(), id, principal.User.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	updated, err := h.taskService.ApplyUpdate(r.Context(), task, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseTaskID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := h.taskService.Get(r.Context(), id, principal.User.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	if err := h.taskService.Delete(r.Context(), id, principal.User.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func parseTaskID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "taskID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid task id")
	}
	return id, nil
}

// parseTaskListOptions normalizes ?completed=&limit=&skip=&sortBy=field:asc|desc.
func parseTaskListOptions(r *http.Request) (types.TaskListOptions, error) {
	opts := types.TaskListOptions{}
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("completed")); raw != "" {
		completed := raw == "true"
		opts.Completed = &completed
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return types.TaskListOptions{}, errors.New("invalid limit")
		}
		opts.Limit = limit
	}

	if raw := strings.TrimSpace(query.Get("skip")); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return types.TaskListOptions{}, errors.New("invalid skip")
		}
		opts.Skip = skip
	}

	if raw := strings.TrimSpace(query.Get("sortBy")); raw != "" {
		field, direction, _ := strings.Cut(raw, ":")
		if _, ok := store.SortColumn(field); !ok {
			return types.TaskListOptions{}, fmt.Errorf("invalid sort field %q", field)
		}
		switch direction {
		case "", "asc":
		case "desc":
			opts.SortDesc = true
		default:
			return types.TaskListOptions{}, fmt.Errorf("invalid sort direction %q", direction)
		}
		opts.SortBy = field
	}

	return opts, nil
}

// parseTaskUpdate decodes the PATCH body against the allow-list
// {description, completed}. Any other key fails the whole update.
func parseTaskUpdate(body io.Reader) (services.TaskUpdate, error) {
	fields := map[string]json.RawMessage{}
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		return services.TaskUpdate{}, errors.New("invalid request")
	}

	var update services.TaskUpdate
	for key, raw := range fields {
		switch key {
		case "description":
			if err := json.Unmarshal(raw, &update.Description); err != nil {
				return services.TaskUpdate{}, errors.New("invalid description")
			}
		case "completed":
			if err := json.Unmarshal(raw, &update.Completed); err != nil {
				return services.TaskUpdate{}, errors.New("invalid completed")
			}
		default:
			return services.TaskUpdate{}, fmt.Errorf("invalid update field %q", key)
		}
	}
	return update, nil
}
