package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/apiserver/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func TestUserService_RegisterHashesPassword(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	notifier := &recordingNotifier{}
	svc := NewUserService(repo, notifier)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Andres", "andres@example.com", "MyPass777?", 0)
	require.NoError(t, err)
	require.Equal(t, "andres@example.com", user.Email)
	require.NotEqual(t, "MyPass777?", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("MyPass777?")))

	require.Equal(t, []string{"andres@example.com"}, notifier.registered)
}

func TestUserService_RegisterRequiresFields(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newFakeUserRepo(), &recordingNotifier{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "a@example.com", "pw", 0)
	require.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.Register(ctx, "A", "", "pw", 0)
	require.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.Register(ctx, "A", "a@example.com", "", 0)
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestUserService_RegisterRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	notifier := &recordingNotifier{}
	svc := NewUserService(repo, notifier)
	ctx := context.Background()

	_, err := svc.Register(ctx, "First", "same@example.com", "pw1", 0)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Second", "same@example.com", "pw2", 0)
	require.ErrorIs(t, err, store.ErrDuplicateEmail)
	require.Len(t, notifier.registered, 1)
}

func TestUserService_AuthenticateCollapsesFailures(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	svc := NewUserService(repo, &recordingNotifier{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "A", "a@example.com", "right-password", 0)
	require.NoError(t, err)

	_, missingErr := svc.Authenticate(ctx, "nobody@example.com", "whatever")
	_, wrongErr := svc.Authenticate(ctx, "a@example.com", "wrong-password")

	require.ErrorIs(t, missingErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	require.Equal(t, missingErr, wrongErr)
}

func TestUserService_AuthenticateSuccess(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	svc := NewUserService(repo, &recordingNotifier{})
	ctx := context.Background()

	created, err := svc.Register(ctx, "A", "a@example.com", "56what!!", 0)
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "a@example.com", "56what!!")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)
}

func TestUserService_ApplyUpdateRehashesPassword(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	svc := NewUserService(repo, &recordingNotifier{})
	ctx := context.Background()

	user, err := svc.Register(ctx, "A", "a@example.com", "old-password", 0)
	require.NoError(t, err)

	newPassword := "new-password"
	newName := "Ants"
	updated, err := svc.ApplyUpdate(ctx, user, UserUpdate{Name: &newName, Password: &newPassword})
	require.NoError(t, err)
	require.Equal(t, "Ants", updated.Name)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte(newPassword)))

	_, err = svc.Authenticate(ctx, "a@example.com", "old-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "a@example.com", newPassword)
	require.NoError(t, err)
}

func TestUserService_DeleteEmitsGoodbye(t *testing.T) {
	t.Parallel()

	repo := newFakeUserRepo()
	notifier := &recordingNotifier{}
	svc := NewUserService(repo, notifier)
	ctx := context.Background()

	user, err := svc.Register(ctx, "A", "a@example.com", "pw", 0)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user))
	require.Equal(t, []string{"a@example.com"}, notifier.deleted)

	_, err = repo.GetByID(ctx, user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
