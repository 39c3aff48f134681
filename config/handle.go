package config

import (
	"sync"

	logger "github.com/sirupsen/logrus"
)

// Handle holds the active environment. Clients that depend on it subscribe
// and rebuild their connections whenever Set swaps the environment.
type Handle struct {
	mu          sync.RWMutex
	current     EnvironmentConfig
	nextId      int
	subscribers map[int]func(EnvironmentConfig)
}

func NewHandle(initial EnvironmentConfig) *Handle {
	return &Handle{
		current:     initial,
		subscribers: make(map[int]func(EnvironmentConfig)),
	}
}

func (h *Handle) Get() EnvironmentConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Subscribe registers fn and returns a function removing it again.
func (h *Handle) Subscribe(fn func(EnvironmentConfig)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextId
	h.nextId++
	h.subscribers[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers, id)
	}
}

// Set replaces the environment and notifies subscribers in registration order.
func (h *Handle) Set(cfg EnvironmentConfig) {
	h.mu.Lock()
	h.current = cfg
	fns := make([]func(EnvironmentConfig), 0, len(h.subscribers))
	for id := 0; id < h.nextId; id++ {
		if fn, ok := h.subscribers[id]; ok {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	logger.WithFields(logger.Fields{
		"env":    cfg.Env,
		"router": cfg.RouterAddress,
	}).Info("environment switched")

	for _, fn := range fns {
		fn(cfg)
	}
}

// SetEnvironment switches to one of the built-in environments.
func (h *Handle) SetEnvironment(env string) error {
	cfg, err := Lookup(env)
	if err != nil {
		return err
	}
	h.Set(cfg)
	return nil
}
