package server

import (
	"log/slog"

	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// IssueWSTicket returns a single-use ticket for GET /api/ws.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := s.authService.IssueWSTicket(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"ticket": ticket, "expiresIn": 30})
}

// WebSocketUpgrade redeems the ticket query parameter before the upgrade.
// Browsers cannot set headers on WebSocket requests, so bearer tokens are not accepted here.
func (s *Server) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	user, err := s.authService.RedeemWSTicket(c.UserContext(), c.Query("ticket"))
	if err != nil {
		return err
	}
	c.Locals(localUser, user)
	return c.Next()
}

// WebsocketHandler registers the socket with the notification hub and pumps events to it.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, ok := conn.Locals(localUser).(*models.User)
		if !ok || user == nil {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(user.ID, user.CanModerate(), conn)
		if err != nil {
			observability.Logger.Warn("websocket registration refused",
				slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		defer s.hub.UnregisterClient(client)

		client.TrySend(notifications.ConnectedMessage)
		go client.WritePump()
		client.ReadPump()
	})
}
