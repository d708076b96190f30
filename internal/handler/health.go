package handler

import (
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
)

const (
	BotRunning  = ""
	BotStarting = "starting"
	BotDisabled = "disabled"
)

type HealthHandler struct {
	botStatus atomic.Value
}

func NewHealthHandler(botEnabled bool) *HealthHandler {
	h := &HealthHandler{}
	if botEnabled {
		h.SetBotStatus(BotRunning)
	} else {
		h.SetBotStatus(BotDisabled)
	}
	return h
}

// SetBotStatus changes the "bot" field reported next to the liveness status.
func (h *HealthHandler) SetBotStatus(status string) {
	h.botStatus.Store(status)
}

// Health always answers 200 so the platform keeps the process alive, even when
// the bot is disabled or still starting.
func (h *HealthHandler) Health(c echo.Context) error {
	body := map[string]string{"status": "ok"}
	if status, _ := h.botStatus.Load().(string); status != BotRunning {
		body["bot"] = status
	}
	return c.JSON(http.StatusOK, body)
}
