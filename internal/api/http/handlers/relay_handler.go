package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-relay/internal/api/dto"
	"github.com/spec-kit/escalation-relay/internal/auth"
	"github.com/spec-kit/escalation-relay/internal/config"
	"github.com/spec-kit/escalation-relay/internal/observability"
	"github.com/spec-kit/escalation-relay/internal/relay"
	"github.com/spec-kit/escalation-relay/internal/service"
	apperrors "github.com/spec-kit/escalation-relay/pkg/util"
)

// RelayHandler serves the token-scoped conversation surface. Every route
// verifies the path credential first; the ticket in scope comes from the
// credential itself, so a token for ticket T cannot address ticket T'.
type RelayHandler struct {
	escalations *service.EscalationService
	bus         *relay.Bus
	credentials *auth.CredentialService
	relayCfg    config.RelayConfig
	metrics     *observability.Metrics
}

// NewRelayHandler constructs handler.
func NewRelayHandler(escalations *service.EscalationService, bus *relay.Bus, credentials *auth.CredentialService, relayCfg config.RelayConfig, metrics *observability.Metrics) *RelayHandler {
	return &RelayHandler{
		escalations: escalations,
		bus:         bus,
		credentials: credentials,
		relayCfg:    relayCfg,
		metrics:     metrics,
	}
}

func (h *RelayHandler) capability(c *fiber.Ctx) (*auth.Capability, error) {
	return h.credentials.Verify(c.Params("token"))
}

// GetTicket GET /:token.
func (h *RelayHandler) GetTicket(c *fiber.Ctx) error {
	claims, err := h.capability(c)
	if err != nil {
		return err
	}
	ticket, msgs, err := h.escalations.History(c.UserContext(), claims.TicketID)
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketStateResponse{
		TicketID: ticket.ID,
		Status:   string(ticket.Status),
		Messages: dto.NewMessageViews(msgs),
	})
}

// SendMessage POST /:token/message.
func (h *RelayHandler) SendMessage(c *fiber.Ctx) error {
	claims, err := h.capability(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Text == "" {
		return apperrors.NewValidationError("text required", nil)
	}
	seq, err := h.escalations.RelayMessage(c.UserContext(), claims.TicketID, claims.UserID, req.Text)
	if err != nil {
		return err
	}
	return c.JSON(dto.SendMessageResponse{Status: "ok", Seq: seq})
}

// Poll GET /:token/poll/:watermark?wait_for=<seconds>.
func (h *RelayHandler) Poll(c *fiber.Ctx) error {
	claims, err := h.capability(c)
	if err != nil {
		return err
	}
	watermark, err := strconv.ParseFloat(c.Params("watermark"), 64)
	if err != nil {
		return apperrors.NewValidationError("invalid watermark", nil)
	}

	wait := h.relayCfg.MaxWait()
	if raw := c.Query("wait_for"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			return apperrors.NewValidationError("invalid wait_for", nil)
		}
		if requested := time.Duration(seconds) * time.Second; requested < wait {
			wait = requested
		}
	}

	h.metrics.PollWaiterStarted()
	defer h.metrics.PollWaiterDone()

	msgs, err := h.bus.WaitForNew(c.UserContext(), claims.TicketID, watermark, wait)
	if err != nil {
		return err
	}
	return c.JSON(dto.PollResponse{
		Timestamp: epochNow(),
		TicketID:  claims.TicketID,
		Messages:  dto.NewMessageViews(msgs),
	})
}

// CloseTicket GET /:token/close.
func (h *RelayHandler) CloseTicket(c *fiber.Ctx) error {
	claims, err := h.capability(c)
	if err != nil {
		return err
	}
	if err := h.escalations.Close(c.UserContext(), claims.TicketID, claims.UserID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// Timestamp GET /:token/timestamp.
func (h *RelayHandler) Timestamp(c *fiber.Ctx) error {
	if _, err := h.capability(c); err != nil {
		return err
	}
	return c.JSON(dto.TimestampResponse{Timestamp: epochNow()})
}

func epochNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
