package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/parley/chat-app/internal/blob"
	"github.com/parley/chat-app/internal/history"
	"github.com/parley/chat-app/internal/identity"
)

type fakeUsers struct {
	passwords map[string]string
	profiles  map[string]identity.Profile
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		passwords: make(map[string]string),
		profiles:  make(map[string]identity.Profile),
	}
}

func (f *fakeUsers) Register(ctx context.Context, username, password string) (*identity.Profile, error) {
	if len(username) < 3 {
		return nil, identity.ErrInvalidUsername
	}
	if password == "" {
		return nil, identity.ErrInvalidCredentials
	}
	if _, ok := f.profiles[username]; ok {
		return nil, identity.ErrUserExists
	}
	p := identity.Profile{
		Username:   username,
		Status:     "Available",
		AvatarURL:  identity.DefaultAvatarURL(username),
		Background: "default",
	}
	f.passwords[username] = password
	f.profiles[username] = p
	return &p, nil
}

func (f *fakeUsers) Verify(ctx context.Context, username, password string) (*identity.Profile, error) {
	if f.passwords[username] != password || password == "" {
		return nil, identity.ErrInvalidCredentials
	}
	p := f.profiles[username]
	return &p, nil
}

func (f *fakeUsers) GetProfile(ctx context.Context, username string) (*identity.Profile, error) {
	p, ok := f.profiles[username]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, username string, update identity.ProfileUpdate) (*identity.Profile, error) {
	p, ok := f.profiles[username]
	if !ok {
		return nil, nil
	}
	if update.Status != nil {
		p.Status = *update.Status
	}
	if update.AvatarURL != nil {
		p.AvatarURL = *update.AvatarURL
	}
	if update.Background != nil {
		p.Background = *update.Background
	}
	f.profiles[username] = p
	return &p, nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(username string) (string, error) {
	return "tok-" + username, nil
}

func (fakeTokens) Validate(token string) (string, error) {
	username, ok := strings.CutPrefix(token, "tok-")
	if !ok {
		return "", fmt.Errorf("bad token")
	}
	return username, nil
}

type fakeBlobs struct {
	dir string
}

func (f *fakeBlobs) Save(r io.Reader, originalName string) (*blob.Stored, error) {
	io.Copy(io.Discard, r)
	return &blob.Stored{
		URL:      "/uploads/stored-" + originalName,
		Name:     originalName,
		MimeType: "application/octet-stream",
	}, nil
}

func (f *fakeBlobs) Dir() string { return f.dir }

type fakeMessenger struct {
	posted  []string // "from->target"
	updated []string
}

func (m *fakeMessenger) PostFile(from, target string, fi history.FileInfo) (*history.Message, error) {
	if !strings.HasPrefix(target, "#") && len(target) < 3 {
		return nil, fmt.Errorf("invalid target")
	}
	m.posted = append(m.posted, from+"->"+target)
	return history.NewRoomFile(from, target, fi), nil
}

func (m *fakeMessenger) ProfileUpdated(ctx context.Context, username string) error {
	m.updated = append(m.updated, username)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeUsers, *fakeMessenger) {
	t.Helper()
	users := newFakeUsers()
	messenger := &fakeMessenger{}
	h := NewHandler(users, fakeTokens{}, &fakeBlobs{dir: t.TempDir()}, messenger, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(h, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, users, messenger
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/register", credentialsRequest{Username: "alice", Password: "hunter2"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var reg authResponse
	json.NewDecoder(resp.Body).Decode(&reg)
	resp.Body.Close()
	if reg.Token != "tok-alice" || reg.Profile.Username != "alice" {
		t.Errorf("unexpected register response %+v", reg)
	}
	if reg.Profile.Status != "Available" || reg.Profile.AvatarURL == "" {
		t.Errorf("expected defaults populated, got %+v", reg.Profile)
	}

	// Duplicate username.
	resp = postJSON(t, srv.URL+"/api/register", credentialsRequest{Username: "alice", Password: "x"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Login with the right and wrong password.
	resp = postJSON(t, srv.URL+"/api/login", credentialsRequest{Username: "alice", Password: "hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/login", credentialsRequest{Username: "alice", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegisterInvalidUsername(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/register", credentialsRequest{Username: "ab", Password: "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProfileRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/profile")
	if err != nil {
		t.Fatalf("GET profile: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGetAndUpdateProfile(t *testing.T) {
	srv, users, messenger := newTestServer(t)
	users.Register(context.Background(), "alice", "pw")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/profile", nil)
	req.Header.Set("Authorization", "Bearer tok-alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET profile: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var p profilePayload
	json.NewDecoder(resp.Body).Decode(&p)
	resp.Body.Close()
	if p.Username != "alice" {
		t.Errorf("unexpected profile %+v", p)
	}

	status := "Do not disturb"
	body, _ := json.Marshal(profileUpdateRequest{Status: &status})
	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/api/profile", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok-alice")
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT profile: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	json.NewDecoder(resp.Body).Decode(&p)
	resp.Body.Close()
	if p.Status != "Do not disturb" {
		t.Errorf("expected status updated, got %+v", p)
	}
	if len(messenger.updated) != 1 || messenger.updated[0] != "alice" {
		t.Errorf("expected profile change announced, got %v", messenger.updated)
	}
}

func TestUpload(t *testing.T) {
	srv, users, messenger := newTestServer(t)
	users.Register(context.Background(), "alice", "pw")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("target", "#general")
	fw, _ := form.CreateFormFile("file", "pic.png")
	fw.Write([]byte("fake image bytes"))
	form.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/upload", &buf)
	req.Header.Set("Authorization", "Bearer tok-alice")
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var msg history.Message
	json.NewDecoder(resp.Body).Decode(&msg)
	resp.Body.Close()
	if msg.Kind != history.KindFile || msg.File == nil || msg.File.Name != "pic.png" {
		t.Errorf("unexpected message %+v", msg)
	}
	if len(messenger.posted) != 1 || messenger.posted[0] != "alice->#general" {
		t.Errorf("expected file posted to room, got %v", messenger.posted)
	}
}

func TestUploadMissingTarget(t *testing.T) {
	srv, users, _ := newTestServer(t)
	users.Register(context.Background(), "alice", "pw")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fw, _ := form.CreateFormFile("file", "pic.png")
	fw.Write([]byte("x"))
	form.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/upload", &buf)
	req.Header.Set("Authorization", "Bearer tok-alice")
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST upload: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without target, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
