// Package media drives ffmpeg and ffprobe: probing clips, rendering
// normalized segments, concatenation, and muxing the mixed narration back
// into the merged video. All segments leave here as H.264/AAC with one
// geometry, so concatenation is a stream copy.
package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gendew/merge-video/internal/audio"
	"github.com/gendew/merge-video/internal/timeline"
)

// Clip is the probed metadata of one source video.
type Clip struct {
	Path     string
	Width    int
	Height   int
	FPS      float64
	Duration float64 // seconds
	HasAudio bool
}

// Segment is a rendered, normalized piece of the output timeline.
type Segment struct {
	Path     string
	Duration float64
}

// Timeline is the concatenated video; Duration is the sum of its segments.
type Timeline struct {
	Path     string
	Duration float64
}

// Engine shells out to ffmpeg/ffprobe found on PATH.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	logger      *log.Logger
}

func NewEngine(logger *log.Logger) (*Engine, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Engine{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}, nil
}

// FFmpegPath exposes the resolved binary for the audio decode helpers.
func (e *Engine) FFmpegPath() string {
	return e.ffmpegPath
}

// RenderSegment cuts the clip to the trim window and normalizes it onto the
// canvas at the given frame rate. fit letterboxes (KeepNative); otherwise the
// frame is scaled to the canvas exactly. Clips without an audio stream get
// silence so every segment carries audio.
func (e *Engine) RenderSegment(ctx context.Context, clip Clip, window timeline.Window, canvas timeline.Geometry, fit bool, fps float64, outPath string) (Segment, error) {
	var args []string
	if !window.Covers(clip.Duration) {
		args = append(args, "-ss", fmtSeconds(window.Start), "-t", fmtSeconds(window.Duration()))
	}
	args = append(args, "-i", clip.Path)

	audioInput := "0:a:0"
	if !clip.HasAudio {
		args = append(args,
			"-f", "lavfi",
			"-t", fmtSeconds(window.Duration()),
			"-i", silentSource())
		audioInput = "1:a:0"
	}

	args = append(args, "-vf", scaleFilter(canvas, fit, fps))
	args = append(args, "-map", "0:v:0", "-map", audioInput)
	args = append(args, encodeArgs()...)
	args = append(args, "-shortest", "-y", outPath)

	e.logger.Printf("[Media] Rendering segment %s window=[%.3f,%.3f) canvas=%dx%d fps=%.3f",
		filepath.Base(clip.Path), window.Start, window.End, canvas.Width, canvas.Height, fps)

	if err := e.run(ctx, "render segment", args); err != nil {
		return Segment{}, err
	}
	return Segment{Path: outPath, Duration: window.Duration()}, nil
}

// RenderStill turns a still image into a video segment of the given duration
// with silent audio, normalized like any other segment.
func (e *Engine) RenderStill(ctx context.Context, imagePath string, duration float64, canvas timeline.Geometry, fit bool, fps float64, outPath string) (Segment, error) {
	args := []string{
		"-loop", "1",
		"-t", fmtSeconds(duration),
		"-i", imagePath,
		"-f", "lavfi",
		"-t", fmtSeconds(duration),
		"-i", silentSource(),
		"-vf", scaleFilter(canvas, fit, fps),
		"-map", "0:v:0", "-map", "1:a:0",
	}
	args = append(args, encodeArgs()...)
	args = append(args, "-shortest", "-y", outPath)

	e.logger.Printf("[Media] Rendering tail image %s for %.2fs", filepath.Base(imagePath), duration)

	if err := e.run(ctx, "render still", args); err != nil {
		return Segment{}, err
	}
	return Segment{Path: outPath, Duration: duration}, nil
}

// Concat stream-copies the segments into one file via the concat demuxer.
func (e *Engine) Concat(ctx context.Context, segments []Segment, outPath string) (Timeline, error) {
	if len(segments) == 0 {
		return Timeline{}, fmt.Errorf("no segments to concatenate")
	}

	listPath, err := writeConcatList(filepath.Dir(outPath), segments)
	if err != nil {
		return Timeline{}, err
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outPath,
	}
	if err := e.run(ctx, "concatenate", args); err != nil {
		return Timeline{}, err
	}

	var total float64
	for _, s := range segments {
		total += s.Duration
	}
	return Timeline{Path: outPath, Duration: total}, nil
}

// ExtractAudio decodes the timeline's own audio into a PCM track.
func (e *Engine) ExtractAudio(ctx context.Context, videoPath string) (audio.Track, error) {
	return audio.DecodeFile(ctx, e.ffmpegPath, videoPath)
}

// MuxAudio replaces the video's audio with the raw PCM file, copying the
// video stream untouched.
func (e *Engine) MuxAudio(ctx context.Context, videoPath, pcmPath, outPath string) error {
	args := []string{
		"-i", videoPath,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", audio.SampleRate),
		"-ac", fmt.Sprintf("%d", audio.Channels),
		"-i", pcmPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-y", outPath,
	}
	return e.run(ctx, "mux audio", args)
}

// Remux stream-copies the video into the container implied by outPath's
// extension.
func (e *Engine) Remux(ctx context.Context, videoPath, outPath string) error {
	args := []string{
		"-i", videoPath,
		"-c", "copy",
		"-y", outPath,
	}
	return e.run(ctx, "remux", args)
}

func (e *Engine) run(ctx context.Context, op string, args []string) error {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w: %s", op, err, tailOf(string(out)))
	}
	return nil
}

// writeConcatList writes a concat-demuxer list file next to the output.
func writeConcatList(dir string, segments []Segment) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}
	for _, s := range segments {
		fmt.Fprintf(f, "file '%s'\n", s.Path)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	return f.Name(), nil
}

// scaleFilter builds the -vf chain normalizing a frame onto the canvas.
func scaleFilter(canvas timeline.Geometry, fit bool, fps float64) string {
	if fit {
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%s",
			canvas.Width, canvas.Height, canvas.Width, canvas.Height, fmtSeconds(fps))
	}
	return fmt.Sprintf("scale=%d:%d,fps=%s", canvas.Width, canvas.Height, fmtSeconds(fps))
}

// encodeArgs is the fixed codec profile; the container comes from the output
// path's extension.
func encodeArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", fmt.Sprintf("%d", audio.SampleRate),
		"-ac", fmt.Sprintf("%d", audio.Channels),
		"-pix_fmt", "yuv420p",
	}
}

func silentSource() string {
	return fmt.Sprintf("anullsrc=r=%d:cl=stereo", audio.SampleRate)
}

func fmtSeconds(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// tailOf keeps the end of ffmpeg's output, where the actual error lands.
func tailOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 400 {
		return s
	}
	return "..." + s[len(s)-400:]
}
