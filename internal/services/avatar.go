package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/taskdeck/apiserver/types"
)

const (
	// MaxAvatarBytes is the upload size cap.
	MaxAvatarBytes = 1_000_000

	// avatarSize is the fixed edge length of a stored avatar. Inputs are
	// forced into this box regardless of their aspect ratio.
	avatarSize = 250

	avatarContentType = "image/png"
)

// ErrNoAvatar is returned when a user has no stored avatar.
var ErrNoAvatar = errors.New("no avatar")

// ErrUploadRejected wraps every client-side upload failure: wrong
// extension, oversized file, undecodable image data.
var ErrUploadRejected = errors.New("upload rejected")

var allowedAvatarExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// BlobStore is the slice of object storage the avatar pipeline needs.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// AvatarService validates uploaded images, normalizes them to a fixed
// 250x250 PNG, and keeps the blob in object storage with the key
// recorded on the user row.
type AvatarService struct {
	users UserRepository
	blobs BlobStore
}

func NewAvatarService(users UserRepository, blobs BlobStore) *AvatarService {
	return &AvatarService{users: users, blobs: blobs}
}

// Upload validates the file, normalizes it, stores the blob, and
// records the key on the user. Filename and size checks run before any
// decoding work.
func (s *AvatarService) Upload(ctx context.Context, user types.User, filename string, data []byte) (types.User, error) {
	if err := validateAvatarFile(filename, int64(len(data))); err != nil {
		return types.User{}, err
	}

	normalized, err := normalizeAvatar(data)
	if err != nil {
		return types.User{}, err
	}

	key := avatarKey(user.ID)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(normalized), int64(len(normalized)), avatarContentType); err != nil {
		return types.User{}, err
	}

	user.AvatarKey = key
	return s.users.Update(ctx, user)
}

// Fetch returns the stored avatar bytes for a user id. Missing user,
// missing key, and unreadable blob all collapse into ErrNoAvatar.
func (s *AvatarService) Fetch(ctx context.Context, userID int) ([]byte, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrNoAvatar
	}
	if user.AvatarKey == "" {
		return nil, ErrNoAvatar
	}

	reader, err := s.blobs.Get(ctx, user.AvatarKey)
	if err != nil {
		return nil, ErrNoAvatar
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, ErrNoAvatar
	}
	return data, nil
}

// Remove clears the user's avatar. The blob delete is best-effort; the
// user row is the source of truth for "has avatar".
func (s *AvatarService) Remove(ctx context.Context, user types.User) (types.User, error) {
	if user.AvatarKey == "" {
		return types.User{}, ErrNoAvatar
	}

	_ = s.blobs.Delete(ctx, user.AvatarKey)

	user.AvatarKey = ""
	return s.users.Update(ctx, user)
}

// Cleanup removes the stored blob for a user about to be deleted.
func (s *AvatarService) Cleanup(ctx context.Context, user types.User) {
	if user.AvatarKey == "" {
		return
	}
	_ = s.blobs.Delete(ctx, user.AvatarKey)
}

func avatarKey(userID int) string {
	return fmt.Sprintf("avatars/%d.png", userID)
}

func validateAvatarFile(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if !allowedAvatarExtensions[ext] {
		return fmt.Errorf("%w: please upload a jpg, jpeg or png file", ErrUploadRejected)
	}
	if size == 0 {
		return fmt.Errorf("%w: empty file", ErrUploadRejected)
	}
	if size > MaxAvatarBytes {
		return fmt.Errorf("%w: file larger than %d bytes", ErrUploadRejected, MaxAvatarBytes)
	}
	return nil
}

// normalizeAvatar decodes the image and forces it into the target box
// as PNG. Aspect ratio is intentionally not preserved.
func normalizeAvatar(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode image", ErrUploadRejected)
	}

	resized := imaging.Resize(img, avatarSize, avatarSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
