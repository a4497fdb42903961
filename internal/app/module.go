package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/gostream/internal/stream"
)

func (a *App) initModules() {
	if err := stream.New(stream.Dependency{
		Ctx:        a.ctx,
		Shutdown:   a.cancel,
		Config:     a.config,
		Instrument: a.ins,
		Clock:      a.clock,
		ShortHex:   a.shortHex,
		Goroutine:  a.goroutine,
		Validator:  a.validator,
		Router:     a.router,
		Sender:     a.sender,
		Receiver:   a.receiver,
		Topics:     a.topics,
	}); err != nil {
		slog.Error("failed to init module stream", "error", err)
		os.Exit(1)
	}
}
