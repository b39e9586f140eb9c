package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/ShayCichocki/recursor/internal/engine"
	"github.com/ShayCichocki/recursor/internal/logging"
	"github.com/ShayCichocki/recursor/internal/stream"
	"github.com/ShayCichocki/recursor/pkg/models"
)

// AgentRequest is the body of POST /api/agent and the first message on the
// websocket.
type AgentRequest struct {
	Task     string `json:"task"`
	MaxDepth int    `json:"maxDepth"`
}

// AgentHandler starts runs and streams their snapshots.
type AgentHandler struct {
	settings *settingsHolder
	baseCtx  context.Context
	logger   *logging.Logger
}

func newAgentHandler(baseCtx context.Context, settings *settingsHolder, logger *logging.Logger) *AgentHandler {
	return &AgentHandler{settings: settings, baseCtx: baseCtx, logger: logger}
}

// prepare validates req against the current settings.
func (h *AgentHandler) prepare(req AgentRequest) (*Settings, int, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, 0, fiber.NewError(fiber.StatusBadRequest, "task is required")
	}
	settings := h.settings.Load()
	maxDepth, err := settings.ResolveDepth(req.MaxDepth)
	if err != nil {
		return nil, 0, err
	}
	return settings, maxDepth, nil
}

func (h *AgentHandler) orchestrator(settings *Settings, sink stream.Sink, log *logging.Logger) *engine.Orchestrator {
	return engine.New(settings.Classifier, sink,
		engine.WithLogger(log),
		engine.WithBufferSize(settings.PatchBuffer),
	)
}

// Stream handles POST /api/agent with a text/event-stream response.
func (h *AgentHandler) Stream(c *fiber.Ctx) error {
	var req AgentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	settings, maxDepth, err := h.prepare(req)
	if err != nil {
		return err
	}

	reqID := getRequestID(c)
	log := h.logger.With("request_id", reqID)
	log.Infow("agent_stream_started", "task", req.Task, "max_depth", maxDepth)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		root := h.orchestrator(settings, stream.NewSSEWriter(w), log).Run(h.baseCtx, req.Task, maxDepth)
		log.Infow("agent_stream_finished", "root", root.ID, "state", root.State, "units", root.Count())
	}))
	return nil
}

// upgradeOnly rejects plain HTTP requests on websocket routes.
func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return c.SendStatus(fiber.StatusUpgradeRequired)
}

// Socket handles GET /api/agent/ws. The client sends one AgentRequest; the
// server answers with one {"tree": ...} text message per snapshot and closes.
func (h *AgentHandler) Socket(conn *websocket.Conn) {
	reqID, _ := conn.Locals(requestIDKey).(string)
	log := h.logger.With("request_id", reqID)

	var req AgentRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Warnw("agent_ws_invalid_request", "error", err)
		h.closeWithError(conn, "invalid request body")
		return
	}

	settings, maxDepth, err := h.prepare(req)
	if err != nil {
		log.Warnw("agent_ws_rejected", "error", err)
		h.closeWithError(conn, err.Error())
		return
	}

	log.Infow("agent_ws_started", "task", req.Task, "max_depth", maxDepth)

	sink := stream.SinkFunc(func(_ context.Context, snap models.Snapshot) error {
		if err := conn.WriteJSON(snap); err != nil {
			return fmt.Errorf("%w: %w", stream.ErrTransport, err)
		}
		return nil
	})

	root := h.orchestrator(settings, sink, log).Run(h.baseCtx, req.Task, maxDepth)
	log.Infow("agent_ws_finished", "root", root.ID, "state", root.State, "units", root.Count())

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"))
	_ = conn.Close()
}

func (h *AgentHandler) closeWithError(conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(fiber.Map{"error": msg})
	_ = conn.WriteMessage(websocket.TextMessage, payload)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg))
	_ = conn.Close()
}
