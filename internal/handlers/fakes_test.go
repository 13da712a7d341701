package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: map[int]types.User{}}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[int][]string
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[int][]string{}}
}

func (r *fakeTokenRepo) Add(ctx context.Context, userID int, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[userID] = append(r.tokens[userID], token)
	return nil
}

func (r *fakeTokenRepo) Exists(ctx context.Context, userID int, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tokens[userID] {
		if existing == token {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTokenRepo) Remove(ctx context.Context, userID int, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tokens[userID][:0]
	for _, existing := range r.tokens[userID] {
		if existing != token {
			kept = append(kept, existing)
		}
	}
	r.tokens[userID] = kept
	return nil
}

func (r *fakeTokenRepo) RemoveAll(ctx context.Context, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, userID)
	return nil
}

func (r *fakeTokenRepo) count(userID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens[userID])
}

type fakeTaskRepo struct {
	mu     sync.Mutex
	nextID int
	tasks  map[int]types.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{nextID: 1, tasks: map[int]types.Task{}}
}

func (r *fakeTaskRepo) GetByID(ctx context.Context, id, ownerID int) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (r *fakeTaskRepo) ListByOwner(ctx context.Context, ownerID int, opts types.TaskListOptions) ([]types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := []types.Task{}
	for _, task := range r.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		if opts.Completed != nil && task.Completed != *opts.Completed {
			continue
		}
		owned = append(owned, task)
	}

	sort.Slice(owned, func(i, j int) bool {
		var less bool
		switch opts.SortBy {
		case "description":
			less = owned[i].Description < owned[j].Description
		case "completed":
			less = !owned[i].Completed && owned[j].Completed
		default:
			less = owned[i].ID < owned[j].ID
		}
		if opts.SortDesc {
			return !less
		}
		return less
	})

	if opts.Skip > 0 {
		if opts.Skip >= len(owned) {
			return []types.Task{}, nil
		}
		owned = owned[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(owned) {
		owned = owned[:opts.Limit]
	}
	return owned, nil
}

func (r *fakeTaskRepo) Create(ctx context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task.ID = r.nextID
	r.nextID++
	r.tasks[task.ID] = task
	return task, nil
}

func (r *fakeTaskRepo) Update(ctx context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[task.ID]
	if !ok || existing.OwnerID != task.OwnerID {
		return types.Task{}, store.ErrNotFound
	}
	r.tasks[task.ID] = task
	return task, nil
}

func (r *fakeTaskRepo) Delete(ctx context.Context, id, ownerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: map[string][]byte{}}
}

func (s *fakeBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return nil
}

func (s *fakeBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

type recordingNotifier struct {
	mu         sync.Mutex
	registered []string
	deleted    []string
}

func (n *recordingNotifier) UserRegistered(ctx context.Context, email, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = append(n.registered, email)
}

func (n *recordingNotifier) UserDeleted(ctx context.Context, email, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, email)
}

// testEnv wires the full route tree over in-memory fakes, mirroring the
// server package's router layout.
type testEnv struct {
	router   *chi.Mux
	users    *fakeUserRepo
	tokens   *fakeTokenRepo
	tasks    *fakeTaskRepo
	blobs    *fakeBlobStore
	notifier *recordingNotifier
	auth     *services.AuthService
	userSvc  *services.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    newFakeUserRepo(),
		tokens:   newFakeTokenRepo(),
		tasks:    newFakeTaskRepo(),
		blobs:    newFakeBlobStore(),
		notifier: &recordingNotifier{},
	}

	env.auth = services.NewAuthService(env.users, env.tokens, "test-secret", time.Hour)
	env.userSvc = services.NewUserService(env.users, env.notifier)
	taskSvc := services.NewTaskService(env.tasks)
	avatarSvc := services.NewAvatarService(env.users, env.blobs)

	router := chi.NewRouter()
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, env.userSvc, env.auth, avatarSvc)
	})
	router.Route("/tasks", func(r chi.Router) {
		TaskRouter(r, taskSvc, env.auth)
	})
	env.router = router
	return env
}

// signup registers a user directly through the services and returns the
// user plus a valid token.
func (env *testEnv) signup(t *testing.T, name, email, password string) (types.User, string) {
	t.Helper()

	user, err := env.userSvc.Register(context.Background(), name, email, password, 0)
	require.NoError(t, err)
	token, err := env.auth.Issue(context.Background(), user.ID)
	require.NoError(t, err)
	return user, token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	return recorder
}
