package handlers_test

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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/minutes-backend/internal/handlers"
	"github.com/yungbote/minutes-backend/internal/middleware"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
	"github.com/yungbote/minutes-backend/internal/server"
	"github.com/yungbote/minutes-backend/internal/services"
	types "github.com/yungbote/minutes-backend/internal/domain"
)

var testUserID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

type fakeAuthService struct{}

func (f *fakeAuthService) Register(ctx context.Context, email, password, name string) (*types.User, error) {
	if email == "taken@example.com" {
		return nil, services.ErrEmailTaken
	}
	return &types.User{ID: testUserID, Email: email, Name: name}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (string, *types.User, error) {
	if password != "test123" {
		return "", nil, services.ErrInvalidCredentials
	}
	return "good-token", &types.User{ID: testUserID, Email: email}, nil
}

func (f *fakeAuthService) VerifyToken(tokenString string) (uuid.UUID, error) {
	if tokenString != "good-token" {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	return testUserID, nil
}

func (f *fakeAuthService) AccessTTL() time.Duration { return time.Hour }

type fakeRecordingService struct {
	uploaded  *services.UploadInput
	cancelled []uuid.UUID
	statusErr error
}

func (f *fakeRecordingService) Upload(ctx context.Context, userID uuid.UUID, in services.UploadInput) (*types.Recording, error) {
	body, _ := io.ReadAll(in.Body)
	cp := in
	cp.Body = bytes.NewReader(body)
	f.uploaded = &cp
	return &types.Recording{
		ID:          uuid.New(),
		WorkspaceID: in.WorkspaceID,
		UserID:      userID,
		Filename:    in.Filename,
		Status:      types.StatusPending,
	}, nil
}

func (f *fakeRecordingService) Status(ctx context.Context, userID, recordingID uuid.UUID) (*services.RecordingStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &services.RecordingStatus{
		Recording: &types.Recording{ID: recordingID, UserID: userID, Status: types.StatusProcessing, Stage: types.StageTranscribing},
	}, nil
}

func (f *fakeRecordingService) ListByWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) ([]*types.Recording, error) {
	return []*types.Recording{}, nil
}

func (f *fakeRecordingService) Cancel(ctx context.Context, userID, recordingID uuid.UUID) error {
	f.cancelled = append(f.cancelled, recordingID)
	return nil
}

func (f *fakeRecordingService) Retry(ctx context.Context, userID, recordingID uuid.UUID) error {
	return fmt.Errorf("%w: only errored recordings can be retried", services.ErrConflict)
}

func testRouter(t *testing.T, recSvc services.RecordingService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	auth := &fakeAuthService{}
	return server.NewRouter(server.RouterConfig{
		AuthHandler:      handlers.NewAuthHandler(auth),
		AuthMiddleware:   middleware.NewAuthMiddleware(log, auth),
		RecordingHandler: handlers.NewRecordingHandler(recSvc),
	})
}

func doJSON(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthcheck(t *testing.T) {
	router := testRouter(t, &fakeRecordingService{})
	w := doJSON(router, "GET", "/healthcheck", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthcheck: %d", w.Code)
	}
}

func TestLoginAndRegister(t *testing.T) {
	router := testRouter(t, &fakeRecordingService{})

	w := doJSON(router, "POST", "/api/login", "", gin.H{"email": "test@example.com", "password": "test123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d body=%s", w.Code, w.Body.String())
	}
	var loginResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &loginResp); err != nil || loginResp.AccessToken == "" {
		t.Fatalf("login payload: %s", w.Body.String())
	}

	if w := doJSON(router, "POST", "/api/login", "", gin.H{"email": "test@example.com", "password": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", w.Code)
	}
	if w := doJSON(router, "POST", "/api/register", "", gin.H{"email": "taken@example.com", "password": "test123"}); w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := testRouter(t, &fakeRecordingService{})
	id := uuid.New()

	if w := doJSON(router, "GET", "/api/recordings/"+id.String()+"/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w := doJSON(router, "GET", "/api/recordings/"+id.String()+"/status", "bogus", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}
	if w := doJSON(router, "GET", "/api/recordings/"+id.String()+"/status", "good-token", nil); w.Code != http.StatusOK {
		t.Fatalf("good token: %d body=%s", w.Code, w.Body.String())
	}
}

func TestUploadMultipart(t *testing.T) {
	svc := &fakeRecordingService{}
	router := testRouter(t, svc)
	workspaceID := uuid.New()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "standup meeting.wav")
	_, _ = fw.Write([]byte("fake audio"))
	_ = mw.WriteField("workspace_id", workspaceID.String())
	_ = mw.WriteField("title", "Standup")
	_ = mw.WriteField("duration", "42.5")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/recordings/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d body=%s", w.Code, w.Body.String())
	}
	if svc.uploaded == nil {
		t.Fatalf("service never called")
	}
	if svc.uploaded.WorkspaceID != workspaceID || svc.uploaded.Title != "Standup" || svc.uploaded.Duration != 42.5 {
		t.Fatalf("upload fields wrong: %+v", svc.uploaded)
	}
	got, _ := io.ReadAll(svc.uploaded.Body)
	if string(got) != "fake audio" {
		t.Fatalf("upload body wrong: %q", got)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	svc := &fakeRecordingService{statusErr: fmt.Errorf("%w: recording", services.ErrNotFound)}
	router := testRouter(t, svc)

	w := doJSON(router, "GET", "/api/recordings/"+uuid.NewString()+"/status", "good-token", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("not found mapping: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("error envelope missing code: %s", w.Body.String())
	}
}

func TestRetryConflictMapping(t *testing.T) {
	router := testRouter(t, &fakeRecordingService{})
	w := doJSON(router, "POST", "/api/recordings/"+uuid.NewString()+"/retry", "good-token", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("retry conflict: %d body=%s", w.Code, w.Body.String())
	}
}

func TestCancel(t *testing.T) {
	svc := &fakeRecordingService{}
	router := testRouter(t, svc)
	id := uuid.New()

	w := doJSON(router, "POST", "/api/recordings/"+id.String()+"/cancel", "good-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d", w.Code)
	}
	if len(svc.cancelled) != 1 || svc.cancelled[0] != id {
		t.Fatalf("cancel not forwarded: %v", svc.cancelled)
	}
}
