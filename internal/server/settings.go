package server

import (
	"fmt"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/ShayCichocki/recursor/internal/classify"
	"github.com/ShayCichocki/recursor/internal/config"
)

// Settings is the engine configuration a single request runs with.
type Settings struct {
	DefaultMaxDepth int
	MaxDepthLimit   int
	PatchBuffer     int
	Classifier      classify.Classifier
}

// NewSettings builds Settings from engine configuration, loading the rules
// file when one is configured.
func NewSettings(cfg config.EngineConfig) (*Settings, error) {
	classifier, err := classify.NewFromRules(cfg.RulesFile, classify.Latency{
		Min: cfg.MinLatency,
		Max: cfg.MaxLatency,
	})
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	return &Settings{
		DefaultMaxDepth: cfg.DefaultMaxDepth,
		MaxDepthLimit:   cfg.MaxDepthLimit,
		PatchBuffer:     cfg.PatchBuffer,
		Classifier:      classifier,
	}, nil
}

// ResolveDepth maps a requested maxDepth to the one a run uses.
// 0 selects the default; anything outside [1, MaxDepthLimit] is a 400.
func (s *Settings) ResolveDepth(requested int) (int, error) {
	if requested == 0 {
		return s.DefaultMaxDepth, nil
	}
	if requested < 1 || requested > s.MaxDepthLimit {
		return 0, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("maxDepth must be between 1 and %d", s.MaxDepthLimit))
	}
	return requested, nil
}

// settingsHolder swaps Settings atomically so a config reload never affects
// a run already in flight.
type settingsHolder struct {
	current atomic.Pointer[Settings]
}

func (h *settingsHolder) Load() *Settings {
	return h.current.Load()
}

func (h *settingsHolder) Store(s *Settings) {
	h.current.Store(s)
}
