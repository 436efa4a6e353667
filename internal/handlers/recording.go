package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/minutes-backend/internal/services"
)

type RecordingHandler struct {
	recordingService services.RecordingService
}

func NewRecordingHandler(recordingService services.RecordingService) *RecordingHandler {
	return &RecordingHandler{recordingService: recordingService}
}

// Upload accepts a multipart form: file (required), workspace_id (required),
// title, description, duration.
func (rh *RecordingHandler) Upload(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	workspaceID, err := uuid.Parse(strings.TrimSpace(c.PostForm("workspace_id")))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_workspace_id", err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer file.Close()

	duration := 0.0
	if v := strings.TrimSpace(c.PostForm("duration")); v != "" {
		if parsed, perr := strconv.ParseFloat(v, 64); perr == nil && parsed >= 0 {
			duration = parsed
		}
	}

	rec, err := rh.recordingService.Upload(c.Request.Context(), userID, services.UploadInput{
		WorkspaceID: workspaceID,
		Filename:    fileHeader.Filename,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Duration:    duration,
		Body:        file,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"recording": rec})
}

func (rh *RecordingHandler) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	recordingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	status, err := rh.recordingService.Status(c.Request.Context(), userID, recordingID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, status)
}

func (rh *RecordingHandler) ListByWorkspace(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	recs, err := rh.recordingService.ListByWorkspace(c.Request.Context(), userID, workspaceID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"recordings": recs})
}

func (rh *RecordingHandler) Cancel(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	recordingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := rh.recordingService.Cancel(c.Request.Context(), userID, recordingID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"cancelled": true})
}

func (rh *RecordingHandler) Retry(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	recordingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := rh.recordingService.Retry(c.Request.Context(), userID, recordingID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"retrying": true})
}
