package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxDiagnostic bounds the stderr tail kept on an EncodeFailure.
const maxDiagnostic = 32 << 10

// Rendition is one row of the fixed HLS ladder.
type Rendition struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate string // e.g. "1400k"
	MaxBitrate   string
	BufferSize   string
}

// Ladder is the fixed rendition table, lowest first.
var Ladder = []Rendition{
	{Name: "480p", Width: 854, Height: 480, VideoBitrate: "1400k", MaxBitrate: "1498k", BufferSize: "2100k"},
	{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2800k", MaxBitrate: "2996k", BufferSize: "4200k"},
	{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: "5000k", MaxBitrate: "5350k", BufferSize: "7500k"},
}

// Settings holds the encoding parameters shared by every rendition so the
// renditions stay switch-compatible under one master manifest.
type Settings struct {
	Binary         string
	Timeout        time.Duration
	Preset         string
	CRF            int
	GOP            int
	SegmentSeconds int
	AudioCodec     string
}

func DefaultSettings() Settings {
	return Settings{
		Binary:         "ffmpeg",
		Timeout:        2 * time.Hour,
		Preset:         "veryfast",
		CRF:            22,
		GOP:            48,
		SegmentSeconds: 6,
		AudioCodec:     "copy",
	}
}

// EncodeFailure is returned for any spawn error, non-zero exit or timeout
// of the encoder process. Output carries the captured diagnostic stream.
type EncodeFailure struct {
	Command  string
	ExitCode int
	TimedOut bool
	Output   string
	Err      error
}

func (e *EncodeFailure) Error() string {
	var b strings.Builder
	b.WriteString(e.Command)
	switch {
	case e.TimedOut:
		b.WriteString(" timed out")
	case e.ExitCode > 0:
		b.WriteString(" exited with status ")
		b.WriteString(strconv.Itoa(e.ExitCode))
	default:
		b.WriteString(" failed")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *EncodeFailure) Unwrap() error {
	return e.Err
}

// FFmpeg drives an ffmpeg binary with explicit argument lists.
type FFmpeg struct {
	settings Settings
}

func New(settings Settings) *FFmpeg {
	def := DefaultSettings()
	if settings.Binary == "" {
		settings.Binary = def.Binary
	}
	if settings.Preset == "" {
		settings.Preset = def.Preset
	}
	if settings.CRF <= 0 {
		settings.CRF = def.CRF
	}
	if settings.GOP <= 0 {
		settings.GOP = def.GOP
	}
	if settings.SegmentSeconds <= 0 {
		settings.SegmentSeconds = def.SegmentSeconds
	}
	if settings.AudioCodec == "" {
		settings.AudioCodec = def.AudioCodec
	}
	return &FFmpeg{settings: settings}
}

func (f *FFmpeg) Settings() Settings {
	return f.settings
}

// Thumbnail writes one representative frame of src to dst as JPEG. The
// thumbnail filter picks the most typical frame of each batch, which skips
// leading black or blank frames.
func (f *FFmpeg) Thumbnail(ctx context.Context, src, dst string) error {
	return f.run(ctx, ThumbnailArgs(src, dst))
}

// Rendition encodes src into outDir as an HLS rendition: scaled H.264
// video, passthrough audio, segments and index.m3u8. outDir must exist.
func (f *FFmpeg) Rendition(ctx context.Context, src string, r Rendition, outDir string) error {
	return f.run(ctx, RenditionArgs(f.settings, src, r, outDir))
}

func ThumbnailArgs(src, dst string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-y",
		"-i", src,
		"-map", "0:v:0",
		"-vf", "thumbnail",
		"-frames:v", "1",
		"-q:v", "2",
		"-update", "1",
		dst,
	}
}

func RenditionArgs(s Settings, src string, r Rendition, outDir string) []string {
	gop := strconv.Itoa(s.GOP)
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-y",
		"-i", src,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-vf", ScaleFilter(r),
		"-c:v", "libx264",
		"-preset", s.Preset,
		"-crf", strconv.Itoa(s.CRF),
		"-b:v", r.VideoBitrate,
		"-maxrate", r.MaxBitrate,
		"-bufsize", r.BufferSize,
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
		"-c:a", s.AudioCodec,
		"-f", "hls",
		"-hls_time", strconv.Itoa(s.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outDir, "segment_%03d.ts"),
		filepath.Join(outDir, "index.m3u8"),
	}
}

// ScaleFilter fits the source inside the rendition box and pads the rest,
// so every rendition comes out exactly Width x Height.
func ScaleFilter(r Rendition) string {
	return fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2,pad=w=%d:h=%d:x=(ow-iw)/2:y=(oh-ih)/2,setsar=1",
		r.Width, r.Height, r.Width, r.Height)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	if f.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.settings.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.settings.Binary, args...)
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}

	failure := &EncodeFailure{
		Command: filepath.Base(f.settings.Binary),
		Output:  tail(stderr.Bytes(), maxDiagnostic),
		Err:     err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		failure.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		failure.Err = ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
		if !failure.TimedOut && ctx.Err() == nil {
			failure.Err = nil
		}
	}
	return failure
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
