package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nudge/internal/domain/reminder"
	"nudge/internal/shared/timeparse"
)

type createReminderRequest struct {
	Content string `json:"content"`
	Time    string `json:"time"`
	AgentID string `json:"agent_id"`
}

type cancelByContentRequest struct {
	Query string `json:"query"`
}

type registrationResponse struct {
	UserID     string `json:"user_id"`
	Registered bool   `json:"registered"`
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

// mapDomainError translates a domain error into a status code. Unknown
// errors map to 500.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, reminder.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, reminder.ErrReminderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := mapDomainError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("HTTP: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	c.JSON(status, errorBody(msg))
}

func (s *Server) handleParse(c *gin.Context) {
	text := strings.TrimSpace(c.Query("text"))
	if text == "" {
		c.JSON(http.StatusBadRequest, errorBody("text is required"))
		return
	}
	tz := c.Query("tz")
	if !timeparse.IsKnownTimezone(tz) {
		c.JSON(http.StatusBadRequest, errorBody("unknown timezone: "+tz))
		return
	}
	c.JSON(http.StatusOK, s.svc.ParseTimeIn(text, tz))
}

func (s *Server) handleCreateReminder(c *gin.Context) {
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Time) == "" {
		c.JSON(http.StatusBadRequest, errorBody("time is required"))
		return
	}
	res, err := s.svc.CreateReminder(c.Request.Context(), c.Param("user_id"), req.Content, req.Time, req.AgentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListReminders(c *gin.Context) {
	pending, err := s.svc.GetReminders(c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if pending == nil {
		pending = []reminder.Reminder{}
	}
	c.JSON(http.StatusOK, gin.H{"reminders": pending})
}

func (s *Server) handleCancelReminder(c *gin.Context) {
	if err := s.svc.CancelReminder(c.Param("user_id"), c.Param("reminder_id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCancelByContent(c *gin.Context) {
	var req cancelByContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return
	}
	cancelled, err := s.svc.CancelReminderByContent(c.Param("user_id"), req.Query)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.svc.GetSettings(c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var patch reminder.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return
	}
	settings, err := s.svc.UpdateSettings(c.Param("user_id"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleGetRegistration(c *gin.Context) {
	userID := c.Param("user_id")
	c.JSON(http.StatusOK, registrationResponse{UserID: userID, Registered: s.svc.IsRegistered(userID)})
}

func (s *Server) handleRegister(c *gin.Context) {
	userID := c.Param("user_id")
	if err := s.svc.RegisterUser(userID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, registrationResponse{UserID: userID, Registered: true})
}

func (s *Server) handleUnregister(c *gin.Context) {
	s.svc.UnregisterUser(c.Param("user_id"))
	c.Status(http.StatusNoContent)
}
