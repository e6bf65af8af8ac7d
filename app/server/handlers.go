package server

import (
	"carepulse/app/service/activity"
	"carepulse/app/service/conversation"

	"github.com/gofiber/fiber/v2"
)

type startChatRequest struct {
	ApplicationType string `json:"applicationType"`
}

type chatResponse struct {
	ID       string                 `json:"id"`
	Stage    conversation.Stage     `json:"stage"`
	Messages []conversation.Message `json:"messages"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type activityRequest struct {
	Kind string `json:"kind"`
}

type presenceRequest struct {
	Visible *bool `json:"visible,omitempty"`
	Focused *bool `json:"focused,omitempty"`
}

type scrollRequest struct {
	ElementID string `json:"elementId"`
}

type loginRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleStartChat(c *fiber.Ctx) error {
	var req startChatRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	conv := s.conversationSvc.Start(req.ApplicationType)

	return c.JSON(chatResponse{
		ID:       conv.ID,
		Stage:    conv.Stage(),
		Messages: conv.Transcript().Messages(),
	})
}

func (s *Server) handleGetChat(c *fiber.Ctx) error {
	conv, err := s.conversationSvc.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	return c.JSON(chatResponse{
		ID:       conv.ID,
		Stage:    conv.Stage(),
		Messages: conv.Transcript().Messages(),
	})
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	conv, err := s.conversationSvc.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	var req messageRequest
	if err = c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	conv.HandleMessage(c.Context(), req.Text)

	return c.JSON(chatResponse{
		ID:       conv.ID,
		Stage:    conv.Stage(),
		Messages: conv.Transcript().Messages(),
	})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	conv, err := s.conversationSvc.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	conv.Stop()

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRetryConnection(c *fiber.Ctx) error {
	conv, err := s.conversationSvc.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	connected := conv.Tracker().RetryConnection(c.Context())

	return c.JSON(fiber.Map{"connected": connected})
}

func (s *Server) handleScroll(c *fiber.Ctx) error {
	conv, err := s.conversationSvc.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	var req scrollRequest
	if err = c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	conv.Tracker().RecordElementScroll(req.ElementID)

	return c.SendStatus(fiber.StatusNoContent)
}

// handleActivity is the shared document-level input intake: one event
// fans out to every active conversation through the broadcaster.
func (s *Server) handleActivity(c *fiber.Ctx) error {
	var req activityRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	kind := activity.InputKind(req.Kind)
	switch kind {
	case activity.InputPointer, activity.InputKey, activity.InputTouch:
	default:
		kind = activity.InputPointer
	}

	s.broadcaster.Enqueue(kind)

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handlePresence(c *fiber.Ctx) error {
	var req presenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Visible != nil {
		s.broadcaster.SetVisibility(*req.Visible)
	}

	if req.Focused != nil {
		s.broadcaster.SetFocus(*req.Focused)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleConnection(c *fiber.Ctx) error {
	return c.JSON(s.registry.Snapshot())
}

func (s *Server) handleAdminLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token is required")
	}

	if err := s.sessionMgr.Login(req.Token); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAdminSession(c *fiber.Ctx) error {
	status, err := s.sessionMgr.GetSessionStatus()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(status)
}

func (s *Server) handleAdminActivity(c *fiber.Ctx) error {
	if err := s.sessionMgr.UpdateLastActivity(); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAdminExtend(c *fiber.Ctx) error {
	if err := s.sessionMgr.ExtendSession(); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAdminLogout(c *fiber.Ctx) error {
	if err := s.sessionMgr.Logout(); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.SendStatus(fiber.StatusNoContent)
}
