// Package engine defines the contract Vidgrab consumes from a media fetch
// engine: resolving a URL into stream metadata, and performing the actual
// transfer/merge while reporting progress through a caller-supplied sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type (
	// StreamFormat describes one encoded variant of the source media, as
	// reported by the engine's probe.
	StreamFormat struct {
		ID         string
		Ext        string
		VideoCodec string
		AudioCodec string
		Height     int
		Bitrate    float64
	}

	// StreamMetadata is the result of probing a URL without transferring
	// any media.
	StreamMetadata struct {
		ID        string
		Title     string
		Uploader  string
		Thumbnail string
		Formats   []StreamFormat
	}

	// FetchPlan is the chosen stream-selection/merge strategy for one
	// fetch attempt. Immutable once computed.
	FetchPlan struct {
		Selector string `json:"selector"`
		MergeTo  string `json:"merge_to,omitempty"`
		Ext      string `json:"ext"`
	}

	// TransferStatus carries the metrics reported on each transfer
	// progress callback. Total is zero when the engine cannot estimate
	// the final size.
	TransferStatus struct {
		DownloadedBytes int64
		TotalBytes      int64
		Speed           float64
		ETASeconds      int
		Filename        string
	}

	// ProgressSink is the capability interface through which the engine
	// reports back during a fetch. Every callback is synchronous and
	// must be cheap; returning a non-nil error instructs the engine to
	// abort the ongoing work as soon as possible.
	ProgressSink interface {
		OnTransferProgress(TransferStatus) error
		OnStageFinished(filename string) error
		OnPostProcessingFinished(finalPath string) error
	}

	// FetchResult is returned by a successful fetch. OutputCandidates
	// are the paths the engine believes hold the final artifact, most
	// specific first.
	FetchResult struct {
		VideoID          string
		Title            string
		OutputCandidates []string
	}

	Engine interface {
		Probe(ctx context.Context, url string) (*StreamMetadata, error)
		Fetch(ctx context.Context, url string, plan FetchPlan, sink ProgressSink) (*FetchResult, error)
	}
)

var (
	// ErrCancelled is returned by a ProgressSink callback (and
	// subsequently by Fetch) when the caller has requested cancellation
	// of the ongoing fetch.
	ErrCancelled = errors.New("fetch cancelled")

	// ErrUnsupportedContent indicates the probed URL resolved to content
	// the engine refuses to fetch (playlists, channels, live streams).
	ErrUnsupportedContent = errors.New("unsupported content")

	// ErrPostProcessing marks failures raised during the engine's
	// post-processing/merge stage, as opposed to the transfer itself.
	ErrPostProcessing = errors.New("post-processing failed")
)

// PostProcessingFailure wraps the given message in an error which reports
// true for errors.Is(err, ErrPostProcessing).
func PostProcessingFailure(message string) error {
	return fmt.Errorf("%w: %s", ErrPostProcessing, message)
}

// IsPostProcessingFailure reports whether the fetch failure provided is
// characteristic of the merge/post-processing stage. Engines are expected to
// wrap ErrPostProcessing where they can; the message heuristics cover
// engines which only surface raw tool output.
func IsPostProcessingFailure(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrPostProcessing) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "Postprocessing") ||
		strings.Contains(msg, "ffmpeg") ||
		strings.Contains(msg, "Invalid data found when processing input")
}
