// handlers_chat.go - Chat relay handlers
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kbdesk/backend/internal/chat"
	"github.com/kbdesk/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// ChatHandlerImpl implements the ChatHandler interface
type ChatHandlerImpl struct {
	relay Relay
}

// NewChatHandler creates a new chat handler
func NewChatHandler(relay Relay) ChatHandler {
	return &ChatHandlerImpl{relay: relay}
}

type transcriptResponse struct {
	Entries       []models.ChatEntry `json:"entries"`
	KnowledgeBase string             `json:"knowledgeBase,omitempty"`
}

// HandleGetTranscript returns the conversation so far
func (h *ChatHandlerImpl) HandleGetTranscript(c echo.Context) error {
	return c.JSON(http.StatusOK, transcriptResponse{
		Entries:       h.relay.Transcript(),
		KnowledgeBase: h.relay.KnowledgeBase(),
	})
}

// HandleSendMessage relays a message to the backend and returns the reply.
// A failed call still leaves an error entry in the transcript.
func (h *ChatHandlerImpl) HandleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	entry, err := h.relay.Send(c.Request().Context(), req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return NewValidationError("message")
		}
		return NewUpstreamError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

// HandleResetTranscript clears the conversation
func (h *ChatHandlerImpl) HandleResetTranscript(c echo.Context) error {
	h.relay.Reset()
	return c.NoContent(http.StatusNoContent)
}

// HandleCopyEntry returns an entry's text and flags it as copied
func (h *ChatHandlerImpl) HandleCopyEntry(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewValidationError("index")
	}
	content, err := h.relay.Copy(index)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"content": content})
}

// HandleGetKnowledgeBases lists the known knowledge bases
func (h *ChatHandlerImpl) HandleGetKnowledgeBases(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"current":        h.relay.KnowledgeBase(),
		"knowledgeBases": h.relay.KnowledgeBases(),
	})
}

// HandleSwitchKnowledgeBase asks the backend to load another knowledge base
func (h *ChatHandlerImpl) HandleSwitchKnowledgeBase(c echo.Context) error {
	var req switchKnowledgeBaseRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	if err := h.relay.SwitchKnowledgeBase(c.Request().Context(), req.Name); err != nil {
		return NewUpstreamError(err)
	}
	return h.HandleGetKnowledgeBases(c)
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type switchKnowledgeBaseRequest struct {
	Name string `json:"name"`
}

func (r *switchKnowledgeBaseRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name")
	}
	return nil
}
