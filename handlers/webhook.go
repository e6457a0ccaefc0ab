package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"goflare.io/issuance"
	"goflare.io/issuance/models"
)

const maxWebhookBody = 1 << 20

type WebhookHandler interface {
	HandleWebhook(c echo.Context) error
}

type webhookHandler struct {
	Issuer issuance.Issuer
}

func NewWebhookHandler(
	Issuer issuance.Issuer,
) WebhookHandler {
	return &webhookHandler{
		Issuer: Issuer,
	}
}

// HandleWebhook handles POST /api/webhook. The gateway is acknowledged before any processing.
func (wh *webhookHandler) HandleWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
	}

	signature := c.Request().Header.Get(wh.Issuer.SignatureHeader())
	if err = wh.Issuer.VerifyWebhook(payload, signature); err != nil {
		if errors.Is(err, issuance.ErrSignatureInvalid) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to handle webhook"})
	}

	header := make(map[string]string, len(c.Request().Header))
	for key := range c.Request().Header {
		header[key] = c.Request().Header.Get(key)
	}

	if err = c.JSON(http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		return err
	}

	wh.Issuer.SubmitWebhook(&models.Delivery{
		Provider:   wh.Issuer.Provider(),
		Payload:    payload,
		Header:     header,
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}
