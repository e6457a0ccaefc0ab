package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type HealthHandler interface {
	Health(c echo.Context) error
}

type healthHandler struct{}

func NewHealthHandler() HealthHandler {
	return &healthHandler{}
}

// Health handles GET /health
func (hh *healthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "OK", "message": "Server is up and running!"})
}
