// Package server exposes the HTTP surface: the gateway webhook, the
// dashboard analytics API, health, and metrics.
package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// apiResponse is the envelope every dashboard endpoint replies with.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, apiResponse{Success: true, Data: data})
}

func okMessage(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, apiResponse{Success: true, Message: message})
}

func fail(c echo.Context, status int, err error) error {
	return c.JSON(status, apiResponse{Success: false, Error: err.Error()})
}
