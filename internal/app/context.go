package app

import (
	"log/slog"

	"github.com/ayanobu/nicofetch/internal/config"
	"github.com/ayanobu/nicofetch/internal/store"
)

// Context holds the core environment and shared resources for nicofetch.
// It acts as the single source of truth for the application state.
type Context struct {
	Config *config.Config
	Logger *slog.Logger

	// History keeps the download ledger. Nil when the store is disabled.
	History store.HistoryStore

	// Status tracks the in-flight download for the status API.
	Status *Status
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *slog.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
		Status: NewStatus(),
	}
}

func (c *Context) Close() error {
	if c.History != nil {
		return c.History.Close()
	}
	return nil
}
