package download

import (
	"errors"
	"sort"
	"strings"

	"github.com/vidgrab/vidgrab/internal/engine"
)

// ErrNoViableStream is returned when the probed metadata contains no
// formats at all; the planner never fails for any other reason.
var ErrNoViableStream = errors.New("no viable stream found")

const (
	// h264Selector asks the engine for the best h264 video stream paired
	// with the best AAC-family audio stream, falling back through
	// progressively looser selections.
	h264Selector = "bv*[vcodec~='^(avc1|h264)']+ba[acodec~='^(mp4a|aac)']/b[ext=mp4]/bv*+ba/b"

	// fallbackSelector places no codec constraint at all and merges into
	// a container that can hold anything.
	fallbackSelector  = "bv*+ba/b"
	fallbackContainer = "mkv"

	// Progressive streams above this height are skipped when a capped
	// alternative exists.
	resolutionCap = 1080
)

// PlanFormat selects a target encoding/container plan for the probed stream
// metadata. Pure selection logic: no network or disk I/O. Policy, in
// priority order:
//  1. a single progressive mp4 stream (video+audio already combined),
//     preferring the best at or below 1080p;
//  2. best h264-family video plus best audio, merged into mp4;
//  3. the universal fallback: best video plus best audio, merged into mkv.
func PlanFormat(metadata *engine.StreamMetadata) (engine.FetchPlan, error) {
	if metadata == nil || len(metadata.Formats) == 0 {
		return engine.FetchPlan{}, ErrNoViableStream
	}

	progressive := make([]engine.StreamFormat, 0)
	for _, format := range metadata.Formats {
		if format.Ext == "mp4" && format.VideoCodec != "none" && format.AudioCodec != "none" {
			progressive = append(progressive, format)
		}
	}

	if len(progressive) > 0 {
		capped := make([]engine.StreamFormat, 0, len(progressive))
		for _, format := range progressive {
			if format.Height <= resolutionCap {
				capped = append(capped, format)
			}
		}

		pool := progressive
		if len(capped) > 0 {
			pool = capped
		}

		best := bestQuality(pool)
		return engine.FetchPlan{Selector: best.ID, Ext: "mp4"}, nil
	}

	for _, format := range metadata.Formats {
		if strings.HasPrefix(format.VideoCodec, "avc1") || strings.HasPrefix(format.VideoCodec, "h264") {
			return engine.FetchPlan{Selector: h264Selector, MergeTo: "mp4", Ext: "mp4"}, nil
		}
	}

	return FallbackPlan(), nil
}

// FallbackPlan is the broadest plan available: no codec constraint, merged
// into a universally-compatible container. Used both as the planner's last
// resort and as the worker's one retry after a post-processing failure.
func FallbackPlan() engine.FetchPlan {
	return engine.FetchPlan{Selector: fallbackSelector, MergeTo: fallbackContainer, Ext: fallbackContainer}
}

func bestQuality(formats []engine.StreamFormat) engine.StreamFormat {
	sorted := append([]engine.StreamFormat(nil), formats...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Height != sorted[j].Height {
			return sorted[i].Height > sorted[j].Height
		}
		return sorted[i].Bitrate > sorted[j].Bitrate
	})

	return sorted[0]
}
