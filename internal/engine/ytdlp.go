package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vidgrab/vidgrab/pkg/logger"
)

var log = logger.Get("Engine")

const (
	progressLinePrefix = "line|"
	metaLinePrefix     = "meta|"
	outputLinePrefix   = "output|"

	// outputTemplate keeps the engine-reported video ID inside the
	// materialized filename so that orphaned artifacts can be matched
	// back to their job during cleanup.
	outputTemplate = "%(title).200B [%(id)s].%(ext)s"
)

type (
	// YtdlpConfig controls how the yt-dlp binary is located and invoked.
	YtdlpConfig struct {
		BinaryPath  string `yaml:"binary_path" env:"YTDLP_BINARY" env-default:"yt-dlp"`
		CookiesFile string `yaml:"cookies_file" env:"YTDLP_COOKIES_FILE"`
	}

	// YtdlpEngine implements Engine by shelling out to the yt-dlp
	// binary, adapting its probe JSON and newline-delimited progress
	// output into the Engine contract.
	YtdlpEngine struct {
		config    YtdlpConfig
		outputDir string
	}

	probePayload struct {
		Type       string `json:"_type"`
		ID         string `json:"id"`
		Title      string `json:"title"`
		Channel    string `json:"channel"`
		Uploader   string `json:"uploader"`
		Thumbnail  string `json:"thumbnail"`
		LiveStatus string `json:"live_status"`
		Formats    []struct {
			FormatID   string  `json:"format_id"`
			Ext        string  `json:"ext"`
			VideoCodec string  `json:"vcodec"`
			AudioCodec string  `json:"acodec"`
			Height     int     `json:"height"`
			Tbr        float64 `json:"tbr"`
		} `json:"formats"`
	}
)

func NewYtdlpEngine(config YtdlpConfig, outputDir string) *YtdlpEngine {
	return &YtdlpEngine{config: config, outputDir: outputDir}
}

// Probe resolves the URL provided into descriptive stream metadata without
// transferring any media. Playlists, channels and live/upcoming content are
// rejected with ErrUnsupportedContent.
func (engine *YtdlpEngine) Probe(ctx context.Context, url string) (*StreamMetadata, error) {
	args := []string{"-J", "--no-playlist", "--no-warnings"}
	args = engine.appendCookieArgs(args)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, engine.config.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("probe failed: %w: %s", err, tailOf(stderr.String()))
	}

	var payload probePayload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("probe returned malformed metadata: %w", err)
	}

	switch payload.Type {
	case "playlist", "multi_video", "channel":
		return nil, fmt.Errorf("%w: playlists/channels are not supported, enter a single video or short", ErrUnsupportedContent)
	}

	switch strings.ToLower(payload.LiveStatus) {
	case "is_live", "is_upcoming":
		return nil, fmt.Errorf("%w: live streams or upcoming premieres are not supported", ErrUnsupportedContent)
	}

	metadata := &StreamMetadata{
		ID:        payload.ID,
		Title:     payload.Title,
		Uploader:  payload.Channel,
		Thumbnail: payload.Thumbnail,
		Formats:   make([]StreamFormat, 0, len(payload.Formats)),
	}
	if metadata.Uploader == "" {
		metadata.Uploader = payload.Uploader
	}

	for _, format := range payload.Formats {
		metadata.Formats = append(metadata.Formats, StreamFormat{
			ID:         format.FormatID,
			Ext:        format.Ext,
			VideoCodec: format.VideoCodec,
			AudioCodec: format.AudioCodec,
			Height:     format.Height,
			Bitrate:    format.Tbr,
		})
	}

	return metadata, nil
}

// Fetch performs the transfer (and merge, if the plan demands one), invoking
// the provided sink as yt-dlp reports progress. A sink callback returning an
// error aborts the subprocess; the callback's error is returned.
func (engine *YtdlpEngine) Fetch(ctx context.Context, url string, plan FetchPlan, sink ProgressSink) (*FetchResult, error) {
	cmd := exec.CommandContext(ctx, engine.config.BinaryPath, engine.fetchArgs(url, plan)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	result := &FetchResult{}
	var abortErr error
	var lastFilename string

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := engine.consumeLine(line, sink, result, &lastFilename); err != nil {
			abortErr = err
			log.Emit(logger.STOP, "Aborting fetch of %s: %v\n", url, err)
			_ = cmd.Process.Kill()
			break
		}
	}

	waitErr := cmd.Wait()
	if abortErr != nil {
		return nil, abortErr
	}

	if waitErr != nil {
		return nil, classifyFetchFailure(waitErr, stderr.String())
	}

	if lastFilename != "" {
		result.OutputCandidates = append(result.OutputCandidates, lastFilename)
	}

	return result, nil
}

func (engine *YtdlpEngine) fetchArgs(url string, plan FetchPlan) []string {
	args := []string{
		"--newline", "--no-playlist", "--no-warnings", "--no-simulate",
		"--restrict-filenames", "--no-overwrites", "--continue",
		"--retries", "10", "--fragment-retries", "10", "--socket-timeout", "30",
		"--concurrent-fragments", "16",
		"--paths", "home:" + engine.outputDir,
		"--paths", "temp:" + engine.outputDir,
		"--output", outputTemplate,
		"--format", plan.Selector,
		"--progress-template", "download:" + progressLinePrefix +
			"%(progress.status)s|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|" +
			"%(progress.total_bytes_estimate)s|%(progress.speed)s|%(progress.eta)s|%(progress.filename)s",
		"--print", "pre_process:" + metaLinePrefix + "%(id)s|%(title)s",
		"--print", "after_move:" + outputLinePrefix + "%(filepath)s",
	}

	if plan.MergeTo != "" {
		args = append(args, "--merge-output-format", plan.MergeTo)
	}

	args = engine.appendCookieArgs(args)
	return append(args, url)
}

func (engine *YtdlpEngine) appendCookieArgs(args []string) []string {
	if engine.config.CookiesFile != "" {
		return append(args, "--cookies", engine.config.CookiesFile)
	}

	return args
}

// consumeLine routes one line of subprocess output to the progress sink. Any
// unrecognized line is engine chatter and is ignored.
func (engine *YtdlpEngine) consumeLine(line string, sink ProgressSink, result *FetchResult, lastFilename *string) error {
	switch {
	case strings.HasPrefix(line, progressLinePrefix):
		status, transfer, ok := parseProgressLine(line)
		if !ok {
			return nil
		}

		if transfer.Filename != "" {
			*lastFilename = transfer.Filename
		}

		switch status {
		case "downloading":
			return sink.OnTransferProgress(transfer)
		case "finished":
			return sink.OnStageFinished(transfer.Filename)
		}
	case strings.HasPrefix(line, metaLinePrefix):
		fields := strings.SplitN(strings.TrimPrefix(line, metaLinePrefix), "|", 2)
		if len(fields) == 2 {
			result.VideoID = fields[0]
			result.Title = fields[1]
		}
	case strings.HasPrefix(line, outputLinePrefix):
		finalPath := strings.TrimPrefix(line, outputLinePrefix)
		result.OutputCandidates = append([]string{finalPath}, result.OutputCandidates...)
		return sink.OnPostProcessingFinished(finalPath)
	}

	return nil
}

// parseProgressLine decodes the pipe-delimited template emitted via
// --progress-template. Fields which yt-dlp cannot report are "NA" and decode
// to their zero value.
func parseProgressLine(line string) (string, TransferStatus, bool) {
	fields := strings.Split(strings.TrimPrefix(line, progressLinePrefix), "|")
	if len(fields) != 7 {
		return "", TransferStatus{}, false
	}

	total := parseInt(fields[2])
	if total == 0 {
		total = parseInt(fields[3])
	}

	return fields[0], TransferStatus{
		DownloadedBytes: parseInt(fields[1]),
		TotalBytes:      total,
		Speed:           parseFloat(fields[4]),
		ETASeconds:      int(parseInt(fields[5])),
		Filename:        fields[6],
	}, true
}

func parseInt(raw string) int64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}

	return int64(parsed)
}

func parseFloat(raw string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}

	return parsed
}

// classifyFetchFailure distinguishes merge/post-processing failures from
// other engine failures using the tool's stderr output.
func classifyFetchFailure(waitErr error, stderr string) error {
	detail := tailOf(stderr)
	if detail == "" {
		detail = waitErr.Error()
	}

	if strings.Contains(stderr, "Postprocessing") ||
		strings.Contains(stderr, "ffmpeg") ||
		strings.Contains(stderr, "Invalid data found when processing input") {
		return PostProcessingFailure(detail)
	}

	return fmt.Errorf("fetch failed: %s", detail)
}

// tailOf trims the stderr stream to its final few lines, which is where
// yt-dlp places the actual cause of a failure.
func tailOf(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}

	return strings.TrimSpace(strings.Join(lines, " "))
}

var _ Engine = (*YtdlpEngine)(nil)
