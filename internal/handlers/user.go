package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// maxAvatarRequestBytes caps the whole multipart request; the per-file
// limit is enforced again in the avatar service.
const maxAvatarRequestBytes = 2 << 20

const formFieldAvatar = "avatar"

// UserHandler provides the account endpoints: signup, login, session
// management, profile CRUD, and the avatar pipeline.
type UserHandler struct {
	userService   *services.UserService
	authService   *services.AuthService
	avatarService *services.AvatarService
}

func NewUserHandler(
	userService *services.UserService,
	authService *services.AuthService,
	avatarService *services.AvatarService,
) *UserHandler {
	return &UserHandler{
		userService:   userService,
		authService:   authService,
		avatarService: avatarService,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	authService *services.AuthService,
	avatarService *services.AvatarService,
) {
	handler := NewUserHandler(userService, authService, avatarService)
	requireAuth := RequireAuth(authService)

	r.Post("/", handler.Signup)
	r.Post("/login", handler.Login)
	r.With(requireAuth).Post("/logout", handler.Logout)
	r.With(requireAuth).Post("/logoutAll", handler.LogoutAll)

	r.Route("/me", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", handler.Me)
		r.Patch("/", handler.UpdateMe)
		r.Delete("/", handler.DeleteMe)
		r.Post("/avatar", handler.UploadAvatar)
		r.Delete("/avatar", handler.DeleteAvatar)
	})

	// Public avatar retrieval, no auth on purpose.
	r.Get("/{userID}/avatar", handler.GetAvatar)
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// Signup creates an account and logs the new user in.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Register(r.Context(), req.Name, req.Email, req.Password, req.Age)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingFields):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	token, err := h.authService.Issue(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{User: user, Token: token})
}

// Login verifies credentials and appends a new token to the user's set.
// All credential failures produce the same generic 400.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "unable to login")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "unable to login")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.authService.Issue(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: user, Token: token})
}

// Logout revokes the token the request authenticated with.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.authService.Revoke(r.Context(), principal.User.ID, principal.Token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// LogoutAll revokes every token the user holds.
func (h *UserHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.authService.RevokeAll(r.Context(), principal.User.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, principal.User)
}

// UpdateMe applies an allow-listed partial update to the profile. A
// single unknown field rejects the whole update.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	update, err := parseUserUpdate(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.ApplyUpdate(r.Context(), principal.User, update)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteMe removes the account and everything it owns.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	h.avatarService.Cleanup(r.Context(), principal.User)

	if err := h.userService.Delete(r.Context(), principal.User); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	writeJSON(w, http.StatusOK, principal.User)
}

// UploadAvatar accepts a multipart upload in field "avatar" and stores
// the normalized image.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarRequestBytes)
	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read avatar file")
		return
	}

	updated, err := h.avatarService.Upload(r.Context(), principal.User, header.Filename, data)
	if err != nil {
		if errors.Is(err, services.ErrUploadRejected) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteAvatar clears the stored avatar. 404 when there is none.
func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	updated, err := h.avatarService.Remove(r.Context(), principal.User)
	if err != nil {
		if errors.Is(err, services.ErrNoAvatar) {
			writeError(w, http.StatusNotFound, "no avatar")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete avatar")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// GetAvatar streams a user's avatar. Public endpoint.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID < 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	data, err := h.avatarService.Fetch(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseUserUpdate decodes the PATCH body against the allow-list
// {name, email, password, age}. Any other key fails the whole update.
func parseUserUpdate(body io.Reader) (services.UserUpdate, error) {
	fields := map[string]json.RawMessage{}
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		return services.UserUpdate{}, errors.New("invalid request")
	}

	var update services.UserUpdate
	for key, raw := range fields {
		switch key {
		case "name":
			if err := json.Unmarshal(raw, &update.Name); err != nil {
				return services.UserUpdate{}, errors.New("invalid name")
			}
		case "email":
			if err := json.Unmarshal(raw, &update.Email); err != nil {
				return services.UserUpdate{}, errors.New("invalid email")
			}
		case "password":
			if err := json.Unmarshal(raw, &update.Password); err != nil {
				return services.UserUpdate{}, errors.New("invalid password")
			}
		case "age":
			if err := json.Unmarshal(raw, &update.Age); err != nil {
				return services.UserUpdate{}, errors.New("invalid age")
			}
		default:
			return services.UserUpdate{}, fmt.Errorf("invalid update field %q", key)
		}
	}
	return update, nil
}
