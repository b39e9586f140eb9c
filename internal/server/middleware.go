package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ShayCichocki/recursor/internal/logging"
)

const requestIDKey = "request_id"

// requestID reads the inbound request id header or generates one, and echoes
// it on the response.
func requestID(header string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if header != "" {
			id = c.Get(header)
		}
		if id == "" {
			id = uuid.New().String()
		}
		c.Locals(requestIDKey, id)
		if header != "" {
			c.Set(header, id)
		}
		return c.Next()
	}
}

// getRequestID returns the id stored by requestID.
func getRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

func accessLog(log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		routePath := ""
		if c.Route() != nil {
			routePath = c.Route().Path
		}
		// Reading the body of a streamed response would drain the stream.
		respBytes := -1
		if !c.Response().IsBodyStream() {
			respBytes = len(c.Response().Body())
		}

		log.Infow("http_access",
			"method", c.Method(),
			"path", c.Path(),
			"route", routePath,
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.IP(),
			"user_agent", string(c.Request().Header.UserAgent()),
			"request_id", getRequestID(c),
			"req_bytes", len(c.Request().Body()),
			"resp_bytes", respBytes,
		)
		return err
	}
}

func globalErrorHandler(log *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code < fiber.StatusInternalServerError {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", getRequestID(c),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", getRequestID(c),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
