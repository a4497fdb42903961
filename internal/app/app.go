package app

import (
	"context"
	"net/http"

	"github.com/shandysiswandi/gostream/internal/pkg/clock"
	"github.com/shandysiswandi/gostream/internal/pkg/config"
	"github.com/shandysiswandi/gostream/internal/pkg/goroutine"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
	"github.com/shandysiswandi/gostream/internal/pkg/router"
	"github.com/shandysiswandi/gostream/internal/pkg/uid"
	"github.com/shandysiswandi/gostream/internal/pkg/validator"
	"github.com/shandysiswandi/gostream/internal/stream/entity"
)

// App owns the broker clients, the HTTP surface and the mode job.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	uuid      uid.StringID
	shortHex  uid.StringID

	// resources
	mode     string
	broker   string
	topics   entity.Topics
	sender   *messaging.Sender
	receiver *messaging.Receiver

	// server
	router     *router.Router
	httpServer *http.Server

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New loads configuration and builds every dependency. Setup failures exit
// the process.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initMessaging()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
