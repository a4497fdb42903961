package stream

import (
	"context"

	"github.com/shandysiswandi/gostream/internal/pkg/clock"
	"github.com/shandysiswandi/gostream/internal/pkg/config"
	"github.com/shandysiswandi/gostream/internal/pkg/goroutine"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
	"github.com/shandysiswandi/gostream/internal/pkg/router"
	"github.com/shandysiswandi/gostream/internal/pkg/uid"
	"github.com/shandysiswandi/gostream/internal/pkg/validator"
	"github.com/shandysiswandi/gostream/internal/stream/entity"
	"github.com/shandysiswandi/gostream/internal/stream/inbound"
	"github.com/shandysiswandi/gostream/internal/stream/usecase"
)

type Dependency struct {
	Ctx        context.Context
	Shutdown   context.CancelFunc
	Config     config.Config
	Instrument instrument.Instrumentation
	Clock      clock.Clocker
	ShortHex   uid.StringID
	Goroutine  *goroutine.Manager
	Validator  validator.Validator
	Router     *router.Router
	Sender     *messaging.Sender
	Receiver   *messaging.Receiver
	Topics     entity.Topics
}

func New(dep Dependency) error {
	uc := usecase.New(usecase.Dependency{
		Sender:     dep.Sender,
		Receiver:   dep.Receiver,
		Topics:     dep.Topics,
		Config:     dep.Config,
		Clock:      dep.Clock,
		KeyGen:     dep.ShortHex,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	inbound.RegisterPushEndpoint(dep.Router, dep.Config.GetString("app.server.push_path"), dep.Receiver.PushHandler())

	if dep.Ctx == nil {
		return nil
	}
	return inbound.RegisterJob(dep.Ctx, dep.Config.GetString("app.mode"), dep.Goroutine, uc, dep.Shutdown)
}
