package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/api/downloads"
	"github.com/vidgrab/vidgrab/internal/event"
	"github.com/vidgrab/vidgrab/internal/http/websocket"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

const (
	titleDownloadUpdate         = "DOWNLOAD_UPDATE"
	titleDownloadProgressUpdate = "DOWNLOAD_PROGRESS_UPDATE"
	titleDownloadComplete       = "DOWNLOAD_COMPLETE"
)

// broadcastActivity forwards download service events to every connected
// websocket client, furnishing each with the job's current snapshot.
func (gateway *RestGateway) broadcastActivity(ctx context.Context) {
	eventChannel := make(event.HandlerChannel, 100)
	gateway.eventBus.RegisterHandlerChannel(eventChannel,
		event.JobUpdateEvent, event.JobProgressEvent, event.JobCompleteEvent)

	for {
		select {
		case message := <-eventChannel:
			jobID, ok := message.Payload.(uuid.UUID)
			if !ok {
				log.Emit(logger.ERROR, "failed to extract UUID from %s event (payload %#v)\n", message.Event, message.Payload)
				continue
			}

			gateway.broadcastJobUpdate(message.Event, jobID)
		case <-ctx.Done():
			return
		}
	}
}

func (gateway *RestGateway) broadcastJobUpdate(ev event.Event, jobID uuid.UUID) {
	job, ok := gateway.downloadService.Job(jobID)
	if !ok {
		return
	}

	title := titleDownloadUpdate
	switch ev {
	case event.JobProgressEvent:
		title = titleDownloadProgressUpdate
	case event.JobCompleteEvent:
		title = titleDownloadComplete
	}

	gateway.socket.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"download": downloads.NewDto(job)},
		Type:  websocket.Update,
	})
}
