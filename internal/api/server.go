package api

import (
	"io"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// NewLogger writes JSON, or a console format in development.
func NewLogger(w io.Writer, development bool) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if development {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// NewServer builds the echo instance with global middleware and routes.
func NewServer(h *Handler, logger zerolog.Logger, timeout time.Duration) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(Recovery(logger))
	e.Use(RequestID())
	e.Use(Logger(logger))
	e.Use(echomw.BodyLimit("2M"))
	e.Use(RequestTimeout(timeout))

	h.RegisterRoutes(e)
	return e
}
