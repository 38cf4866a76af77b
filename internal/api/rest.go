package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/vidgrab/vidgrab/internal/api/downloads"
	"github.com/vidgrab/vidgrab/internal/event"
	"github.com/vidgrab/vidgrab/internal/http/websocket"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin wrapper around the echo HTTP router. Its
	// sole responsibility is to create the routes Vidgrab exposes and to
	// manage the ongoing websocket connections fed by the event bus.
	RestGateway struct {
		config              *RestConfig
		ec                  *echo.Echo
		socket              *websocket.SocketHub
		eventBus            event.EventCoordinator
		downloadService     downloads.DownloadService
		downloadsController controller
	}
)

// NewRestGateway constructs the echo router and populates it with the
// routes defined by the downloads controller.
func NewRestGateway(config *RestConfig, downloadService downloads.DownloadService, eventBus event.EventCoordinator) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	socket.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{
			"downloads": downloads.NewReducedDtos(downloadService.Recent(20)),
		}
	})

	gateway := &RestGateway{
		config:              config,
		ec:                  ec,
		socket:              socket,
		eventBus:            eventBus,
		downloadService:     downloadService,
		downloadsController: downloads.New(validator.New(), downloadService),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/vidgrab/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	downloadGroup := ec.Group("/api/vidgrab/v1/downloads")
	gateway.downloadsController.SetRoutes(downloadGroup)

	return gateway
}

// Run brings up the HTTP router, the websocket hub and the activity
// broadcaster, blocking until the provided context is cancelled (or the
// router fails).
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.broadcastActivity(ctx)
	}()

	wg.Wait()
	if cause := context.Cause(ctx); cause != nil && cause != parentCtx.Err() {
		return cause
	}

	return nil
}
