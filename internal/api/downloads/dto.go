package downloads

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/vidgrab/vidgrab/internal/download"
)

type (
	// Dto is the full representation of a download job returned by the
	// get endpoint. Transfer metrics are pre-formatted for display.
	Dto struct {
		Id          uuid.UUID `json:"id"`
		Url         string    `json:"url"`
		Status      string    `json:"status"`
		Progress    float64   `json:"progress"`
		Speed       string    `json:"speed,omitempty"`
		Eta         int       `json:"eta,omitempty"`
		Downloaded  string    `json:"downloaded"`
		Total       string    `json:"total"`
		Filename    string    `json:"filename,omitempty"`
		UsedCookies bool      `json:"used_cookies"`
		Error       string    `json:"error,omitempty"`
		VideoId     string    `json:"video_id,omitempty"`
		StartedAt   string    `json:"started_at,omitempty"`
		ExpiresAt   string    `json:"expires_at,omitempty"`
		UpdatedAt   time.Time `json:"updated_at"`
		Expired     bool      `json:"expired"`
		Ready       bool      `json:"ready"`
	}

	// ReducedDto is the representation used by the list endpoint.
	ReducedDto struct {
		Id       uuid.UUID `json:"id"`
		Url      string    `json:"url"`
		Status   string    `json:"status"`
		Progress float64   `json:"progress"`
		Filename string    `json:"filename,omitempty"`
		Expired  bool      `json:"expired"`
	}
)

// Timestamps are rendered in a fixed display timezone rather than the
// server's local one.
const (
	displayTimezone   = "Asia/Kolkata"
	displayTimeFormat = "02 Jan 2006, 03:04:05 PM MST"
)

var (
	displayLocation     *time.Location
	displayLocationOnce sync.Once
)

func NewDto(job download.Job) Dto {
	dto := Dto{
		Id:          job.ID,
		Url:         job.URL,
		Status:      job.Status.String(),
		Progress:    math.Round(job.Progress*100) / 100,
		Eta:         job.ETASeconds,
		Downloaded:  humanize.IBytes(uint64(job.DownloadedBytes)),
		Total:       formatTotal(job.TotalBytes),
		Filename:    job.Filename,
		UsedCookies: job.UsedCookies,
		Error:       job.Error,
		VideoId:     job.VideoID,
		StartedAt:   formatDisplayTime(job.StartedAt),
		ExpiresAt:   formatDisplayTime(job.ExpiresAt),
		UpdatedAt:   job.UpdatedAt,
		Expired:     job.Expired,
		Ready:       job.Status == download.FINISHED && !job.Expired,
	}

	if job.Speed > 0 {
		dto.Speed = fmt.Sprintf("%s/s", humanize.IBytes(uint64(job.Speed)))
	}

	return dto
}

func NewReducedDto(job download.Job) ReducedDto {
	return ReducedDto{
		Id:       job.ID,
		Url:      job.URL,
		Status:   job.Status.String(),
		Progress: math.Round(job.Progress*10) / 10,
		Filename: job.Filename,
		Expired:  job.Expired,
	}
}

func NewReducedDtos(jobs []download.Job) []ReducedDto {
	dtos := make([]ReducedDto, len(jobs))
	for idx, job := range jobs {
		dtos[idx] = NewReducedDto(job)
	}

	return dtos
}

func formatTotal(total int64) string {
	if total <= 0 {
		return "?"
	}

	return humanize.IBytes(uint64(total))
}

func formatDisplayTime(stamp time.Time) string {
	if stamp.IsZero() {
		return ""
	}

	displayLocationOnce.Do(func() {
		location, err := time.LoadLocation(displayTimezone)
		if err != nil {
			location = time.UTC
		}
		displayLocation = location
	})

	return stamp.In(displayLocation).Format(displayTimeFormat)
}
