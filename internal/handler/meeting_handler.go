package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"Meetpulse/internal/event"
	"Meetpulse/internal/hub"
	"Meetpulse/internal/repo"
	"Meetpulse/internal/rtc"
)

type MeetingHandler interface {
	GetMeetings(c *gin.Context)
	GetMeeting(c *gin.Context)
	GetTranscript(c *gin.Context)
	GetRTCToken(c *gin.Context)
	SetRecording(c *gin.Context)
}

type meetingHandler struct {
	meetings    repo.MeetingDataRepository
	transcripts repo.TranscriptRepository
	tokens      *rtc.TokenIssuer
	rooms       *hub.Hub
}

func NewMeetingHandler(
	meetings repo.MeetingDataRepository,
	transcripts repo.TranscriptRepository,
	tokens *rtc.TokenIssuer,
	rooms *hub.Hub,
) MeetingHandler {
	return &meetingHandler{
		meetings:    meetings,
		transcripts: transcripts,
		tokens:      tokens,
		rooms:       rooms,
	}
}

func (h *meetingHandler) GetMeetings(c *gin.Context) {
	meetings, err := h.meetings.GetMeetings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get meetings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}

func (h *meetingHandler) GetMeeting(c *gin.Context) {
	meetingID := c.Param("meetingId")

	meeting, err := h.meetings.GetMeeting(c.Request.Context(), meetingID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get meeting"})
		return
	}
	if meeting == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"meeting": meeting})
}

func (h *meetingHandler) GetTranscript(c *gin.Context) {
	meetingID := c.Param("meetingId")
	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	rows, err := h.transcripts.PageRows(c.Request.Context(), meetingID, pageNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get transcript"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transcript": rows})
}

func (h *meetingHandler) GetRTCToken(c *gin.Context) {
	meetingID := c.Param("meetingId")
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	token, err := h.tokens.JoinToken(meetingID, userID, time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mint token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"url":      h.tokens.URL(),
		"room":     meetingID,
		"identity": userID,
	})
}

type recordingRequest struct {
	Recording bool   `json:"recording"`
	UserID    string `json:"userId"`
}

// SetRecording toggles recording for a meeting and broadcasts the change
// to the room.
func (h *meetingHandler) SetRecording(c *gin.Context) {
	meetingID := c.Param("meetingId")

	var req recordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	kind := event.UpdateRecordingStarted
	if !req.Recording {
		kind = event.UpdateRecordingStopped
	}

	h.rooms.Publish(meetingID, event.NewEvent(event.EventRecordingStatus, event.RecordingStatusPayload{
		MeetingID: meetingID,
		Recording: req.Recording,
		StartedBy: req.UserID,
	}))
	h.rooms.Publish(meetingID, event.NewEvent(event.EventMeetingUpdate, event.MeetingUpdatePayload{
		MeetingID: meetingID,
		Kind:      kind,
		UserID:    req.UserID,
	}))

	c.JSON(http.StatusOK, gin.H{"meetingId": meetingID, "recording": req.Recording})
}
