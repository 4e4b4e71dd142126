// handlers_parse.go - Parse session operation handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/storage"
)

// progressStreamTimeout bounds an SSE progress stream.
const progressStreamTimeout = 5 * time.Minute

// ParseHandlerImpl implements the ParseHandler interface
type ParseHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
}

// NewParseHandler creates a new parse handler instance
func NewParseHandler(store storage.Store, sessionMgr SessionManager) ParseHandler {
	return &ParseHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
	}
}

// HandleStartParse starts a parse session for an uploaded log
func (h *ParseHandlerImpl) HandleStartParse(c echo.Context) error {
	var req startParseRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	if _, err := h.store.Get(req.FileID); err != nil {
		return NewNotFoundError("file", req.FileID)
	}
	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return NewInternalError("failed to get file path", err)
	}

	sess, err := h.sessionMgr.StartSession(req.FileID, path)
	if err != nil {
		return NewInternalError("failed to start session", err)
	}
	h.store.SetStatus(req.FileID, storage.StatusParsing)

	return c.JSON(http.StatusAccepted, sess)
}

// HandleParseStatus returns the current status of a parsing session
func (h *ParseHandlerImpl) HandleParseStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)
	h.syncFileStatus(sess)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *ParseHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleParseProgressStream streams parsing progress via SSE
func (h *ParseHandlerImpl) HandleParseProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(progressStreamTimeout)
	defer timeout.Stop()

	ctx := c.Request().Context()
	for {
		sess, ok := h.sessionMgr.GetSession(id)
		if !ok {
			h.sendSSEError(c, "session not found")
			return nil
		}
		h.sendSSEData(c, sess)

		if sess.Finished() {
			h.syncFileStatus(sess)
			return nil
		}

		select {
		case <-ticker.C:
		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// HandleParseResult returns an overview of a complete parse. With
// full=true the whole parsed log is returned instead.
func (h *ParseHandlerImpl) HandleParseResult(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if sess.Status == models.SessionStatusError && len(sess.Errors) > 0 {
		pe := sess.Errors[0]
		return &APIError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "LOG_FORMAT_ERROR",
			Message: fmt.Sprintf("line %d: %s", pe.Line, pe.Reason),
			Details: pe.Content,
		}
	}

	result, err := h.sessionMgr.GetResult(id)
	if err != nil {
		return fromDomainError(err, id)
	}
	h.sessionMgr.TouchSession(id)

	if c.QueryParam("full") == "true" {
		return c.JSON(http.StatusOK, result)
	}
	return c.JSON(http.StatusOK, newResultOverview(sess, result))
}

// HandleDeleteSession discards a parse session and its frame index
func (h *ParseHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessionMgr.DeleteSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// syncFileStatus mirrors a finished session onto its uploaded file.
func (h *ParseHandlerImpl) syncFileStatus(sess *models.ParseSession) {
	switch sess.Status {
	case models.SessionStatusComplete:
		h.store.SetStatus(sess.FileID, storage.StatusParsed)
	case models.SessionStatusError:
		h.store.SetStatus(sess.FileID, storage.StatusError)
	}
}

func (h *ParseHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *ParseHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

// Request/Response types

type startParseRequest struct {
	FileID string `json:"fileId"`
}

type resultOverview struct {
	Session      *models.ParseSession `json:"session"`
	Kind         models.LogKind       `json:"kind"`
	TimeRange    *models.TimeRange    `json:"timeRange,omitempty"`
	LogStarted   time.Time            `json:"logStarted"`
	Version      string               `json:"version,omitempty"`
	Guiding      []guidingOverview    `json:"guidingSessions,omitempty"`
	Calibrations int                  `json:"calibrationCount,omitempty"`
	Autoruns     []autorunOverview    `json:"autoruns,omitempty"`
}

func newResultOverview(sess *models.ParseSession, result *models.ParsedLog) resultOverview {
	out := resultOverview{Session: sess, Kind: result.Kind, TimeRange: result.TimeRange}
	switch result.Kind {
	case models.LogKindGuiding:
		log := result.Guiding
		out.LogStarted = log.Datetime
		out.Version = log.PHDVersion
		out.Guiding = guidingOverviews(log)
		out.Calibrations = len(log.CalibrationSessions)
	case models.LogKindAutorun:
		out.LogStarted = result.Autorun.Datetime
		out.Autoruns = autorunOverviews(result.Autorun)
	}
	return out
}
