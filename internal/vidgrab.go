package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/engine"
	"github.com/vidgrab/vidgrab/internal/event"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	DownloadService interface {
		RunnableService
		Submit(rawURL string) (uuid.UUID, error)
		Cancel(id uuid.UUID) error
		Job(id uuid.UUID) (download.Job, bool)
		Recent(limit int) []download.Job
		Artifact(id uuid.UUID) (path string, name string, err error)
		Probe(ctx context.Context, rawURL string) (*engine.StreamMetadata, error)
	}
)

// Vidgrab represents the top-level object for the server, responsible for
// initialising the event bus, the download service and the REST gateway,
// and running them until shutdown.
type vidgrabImpl struct {
	eventBus        event.EventCoordinator
	config          VidgrabConfig
	downloadService DownloadService
	restGateway     RunnableService
}

func New(config VidgrabConfig) *vidgrabImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Vidgrab services using config: %#v\n", config)

	if config.Engine.CookiesFile == "" {
		config.Engine.CookiesFile = config.Download.CookiesFilePath
	}

	vidgrab := &vidgrabImpl{
		eventBus: event.New(),
		config:   config,
	}

	fetchEngine := engine.NewYtdlpEngine(config.Engine, config.Download.OutputDirPath)
	if serv, err := download.New(config.Download, vidgrab.eventBus, fetchEngine); err == nil {
		vidgrab.downloadService = serv
	} else {
		panic(fmt.Sprintf("failed to construct download service due to error: %s", err.Error()))
	}

	vidgrab.restGateway = api.NewRestGateway(&config.RestConfig, vidgrab.downloadService, vidgrab.eventBus)
	return vidgrab
}

// Run brings up the download service and the REST gateway, blocking until
// the provided context is cancelled or one of the services fails.
func (vidgrab *vidgrabImpl) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	services := map[string]RunnableService{
		"download": vidgrab.downloadService,
		"api":      vidgrab.restGateway,
	}

	for label, service := range services {
		wg.Add(1)
		go func(label string, service RunnableService) {
			defer wg.Done()
			if err := service.Run(ctx); err != nil {
				log.Emit(logger.ERROR, "Service %s failed: %v\n", label, err)
				ctxCancel(err)
			}
		}(label, service)
	}

	log.Emit(logger.SUCCESS, "Vidgrab is running\n")
	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && cause != parentCtx.Err() {
		return cause
	}

	return nil
}
