// A collection of event names and common methods used to handle the events,
// typically redirecting the handling to a service method or other method via
// the `Handler` interface.
package event

import (
	"sync"

	"github.com/vidgrab/vidgrab/pkg/logger"
)

var log = logger.Get("Event")

// Events emitted by various parts of Vidgrab that should be handled by
// another, silo'd part of the architecture. Each silo/service listens for a
// specific event, which indicates an item is ready for processing (or
// observation) by that service.
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		sync.Mutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	// JobUpdateEvent indicates a change to the status (or other
	// non-progress field) of the download job whose ID is the payload.
	JobUpdateEvent Event = "job:update"

	// JobProgressEvent indicates new transfer metrics for the download
	// job whose ID is the payload.
	JobProgressEvent Event = "job:update:progress"

	// JobCompleteEvent is dispatched once a download job reaches a
	// terminal state.
	JobCompleteEvent Event = "job:complete"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event
// messages on the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on
// the handler channel, then the thread dispatching the event will also be
// BLOCKED. It is recommended to buffer the handler channels appropriately to
// avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()

	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction accepts an event and a handler method which will be
// invoked synchronously (with respect to the dispatcher) any time the event
// is dispatched.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle: handle, async: false})
}

// RegisterAsyncHandlerFunction accepts an event and a handler method which
// will be invoked inside a new goroutine any time the event is dispatched.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle: handle, async: true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, method handlerMethod) {
	handler.Lock()
	defer handler.Unlock()

	handler.fnHandlers[event] = append(handler.fnHandlers[event], method)
}

// Dispatch emits the provided event to all registered handler functions and
// handler channels. Synchronous handler functions (and unbuffered, busy
// handler channels) will block the caller.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	handler.Lock()
	fns := append([]handlerMethod(nil), handler.fnHandlers[event]...)
	chans := append([]HandlerChannel(nil), handler.chanHandlers[event]...)
	handler.Unlock()

	log.Emit(logger.VERBOSE, "Dispatching event %s (payload %v)\n", event, payload)
	for _, method := range fns {
		if method.async {
			go method.handle(event, payload)
		} else {
			method.handle(event, payload)
		}
	}

	for _, channel := range chans {
		channel <- HandlerEvent{Event: event, Payload: payload}
	}
}
