package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/parley/chat-app/internal/blob"
	"github.com/parley/chat-app/internal/history"
	"github.com/parley/chat-app/internal/identity"
)

// UserStore is the account collaborator behind the auth and profile
// endpoints.
type UserStore interface {
	Register(ctx context.Context, username, password string) (*identity.Profile, error)
	Verify(ctx context.Context, username, password string) (*identity.Profile, error)
	GetProfile(ctx context.Context, username string) (*identity.Profile, error)
	UpdateProfile(ctx context.Context, username string, update identity.ProfileUpdate) (*identity.Profile, error)
}

// TokenSource issues and validates credential tokens.
type TokenSource interface {
	Issue(username string) (string, error)
	Validate(token string) (string, error)
}

// BlobStore persists uploaded files.
type BlobStore interface {
	Save(r io.Reader, originalName string) (*blob.Stored, error)
	Dir() string
}

// Messenger hands completed uploads and profile changes to the live side of
// the service.
type Messenger interface {
	PostFile(from, target string, fi history.FileInfo) (*history.Message, error)
	ProfileUpdated(ctx context.Context, username string) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	users     UserStore
	tokens    TokenSource
	blobs     BlobStore
	messenger Messenger
	log       zerolog.Logger
}

// NewHandler creates a Handler with the given collaborators.
func NewHandler(users UserStore, tokens TokenSource, blobs BlobStore, messenger Messenger, log zerolog.Logger) *Handler {
	return &Handler{users: users, tokens: tokens, blobs: blobs, messenger: messenger, log: log}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type profilePayload struct {
	Username   string `json:"username"`
	Status     string `json:"status"`
	AvatarURL  string `json:"avatar_url"`
	Background string `json:"background"`
}

type authResponse struct {
	Token   string         `json:"token"`
	Profile profilePayload `json:"profile"`
}

func toProfilePayload(p *identity.Profile) profilePayload {
	return profilePayload{
		Username:   p.Username,
		Status:     p.Status,
		AvatarURL:  p.AvatarURL,
		Background: p.Background,
	}
}

// Register creates an account and returns a fresh token so the client can
// connect straight away.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	profile, err := h.users.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, identity.ErrUserExists):
		h.Error(w, http.StatusConflict, "username already taken")
		return
	case errors.Is(err, identity.ErrInvalidUsername):
		h.Error(w, http.StatusBadRequest, "username must be 3-32 lowercase letters, digits, _ or -")
		return
	case errors.Is(err, identity.ErrInvalidCredentials):
		h.Error(w, http.StatusBadRequest, "password is required")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("register failed")
		h.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := h.tokens.Issue(profile.Username)
	if err != nil {
		h.log.Error().Err(err).Msg("token issue failed")
		h.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.JSON(w, http.StatusCreated, authResponse{Token: token, Profile: toProfilePayload(profile)})
}

// Login verifies credentials and returns a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	profile, err := h.users.Verify(r.Context(), req.Username, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		h.Error(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("login failed")
		h.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := h.tokens.Issue(profile.Username)
	if err != nil {
		h.log.Error().Err(err).Msg("token issue failed")
		h.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.JSON(w, http.StatusOK, authResponse{Token: token, Profile: toProfilePayload(profile)})
}

// GetProfile returns the caller's own profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	username, _ := UsernameFromContext(r.Context())

	profile, err := h.users.GetProfile(r.Context(), username)
	if err != nil {
		h.log.Error().Err(err).Msg("profile lookup failed")
		h.Error(w, http.StatusInternalServerError, "profile unavailable")
		return
	}
	if profile == nil {
		h.Error(w, http.StatusNotFound, "profile not found")
		return
	}

	h.JSON(w, http.StatusOK, toProfilePayload(profile))
}

type profileUpdateRequest struct {
	Status     *string `json:"status"`
	AvatarURL  *string `json:"avatar_url"`
	Background *string `json:"background"`
}

// UpdateProfile applies a partial profile change and announces it to every
// connected client.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	username, _ := UsernameFromContext(r.Context())

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	profile, err := h.users.UpdateProfile(r.Context(), username, identity.ProfileUpdate{
		Status:     req.Status,
		AvatarURL:  req.AvatarURL,
		Background: req.Background,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("profile update failed")
		h.Error(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	if profile == nil {
		h.Error(w, http.StatusNotFound, "profile not found")
		return
	}

	if err := h.messenger.ProfileUpdated(r.Context(), username); err != nil {
		h.log.Warn().Err(err).Msg("profile change announcement failed")
	}

	h.JSON(w, http.StatusOK, toProfilePayload(profile))
}

// Upload stores a multipart file and posts it as a message to the target
// room or conversation named in the form.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	username, _ := UsernameFromContext(r.Context())

	if err := r.ParseMultipartForm(blob.MaxUploadSize); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	target := r.FormValue("target")
	if target == "" {
		h.Error(w, http.StatusBadRequest, "target is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	stored, err := h.blobs.Save(file, header.Filename)
	if errors.Is(err, blob.ErrTooLarge) {
		h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("blob save failed")
		h.Error(w, http.StatusInternalServerError, "upload failed")
		return
	}

	msg, err := h.messenger.PostFile(username, target, history.FileInfo{
		URL:      stored.URL,
		Name:     stored.Name,
		MimeType: stored.MimeType,
	})
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid target")
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}
