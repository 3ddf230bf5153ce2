// Package pipeline runs a merge request end to end: probe the inputs, plan
// trims and geometry, render normalized segments in parallel, concatenate
// them, and attach the narration mix.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gendew/merge-video/internal/audio"
	"github.com/gendew/merge-video/internal/media"
	"github.com/gendew/merge-video/internal/models"
	"github.com/gendew/merge-video/internal/timeline"
	"github.com/gendew/merge-video/internal/voice"
)

// MediaEngine is the rendering surface the orchestrator drives. It matches
// *media.Engine; tests substitute a fake.
type MediaEngine interface {
	Probe(ctx context.Context, path string) (media.Clip, error)
	RenderSegment(ctx context.Context, clip media.Clip, window timeline.Window, canvas timeline.Geometry, fit bool, fps float64, outPath string) (media.Segment, error)
	RenderStill(ctx context.Context, imagePath string, duration float64, canvas timeline.Geometry, fit bool, fps float64, outPath string) (media.Segment, error)
	Concat(ctx context.Context, segments []media.Segment, outPath string) (media.Timeline, error)
	ExtractAudio(ctx context.Context, videoPath string) (audio.Track, error)
	MuxAudio(ctx context.Context, videoPath, pcmPath, outPath string) error
	Remux(ctx context.Context, videoPath, outPath string) error
}

var _ MediaEngine = (*media.Engine)(nil)

// VoiceResolver yields the narration track for a request, or ok=false when
// narration should be skipped.
type VoiceResolver interface {
	Resolve(ctx context.Context, opts models.MergeOptions, warn func(string, ...interface{})) (audio.Track, bool, error)
}

var _ VoiceResolver = (*voice.Resolver)(nil)

// Result is the outcome of a successful merge.
type Result struct {
	OutputPath string
	Duration   float64 // seconds
	Warnings   []string
}

// Orchestrator wires the merge stages together. It is safe for concurrent
// use; every Run works in its own temp directory.
type Orchestrator struct {
	media       MediaEngine
	voice       VoiceResolver
	tempRoot    string
	renderLimit int
	logger      *log.Logger
}

// NewOrchestrator builds an orchestrator. tempRoot may be empty to use the
// system temp dir; renderLimit caps concurrent ffmpeg renders.
func NewOrchestrator(m MediaEngine, v VoiceResolver, tempRoot string, renderLimit int, logger *log.Logger) *Orchestrator {
	if renderLimit < 1 {
		renderLimit = 1
	}
	return &Orchestrator{
		media:       m,
		voice:       v,
		tempRoot:    tempRoot,
		renderLimit: renderLimit,
		logger:      logger,
	}
}

// Run executes one merge. Recoverable problems (clamped trims, unusable
// narration inputs, a missing tail image) degrade the output and surface as
// warnings; anything else fails the merge. Intermediate files are removed in
// all cases.
func (o *Orchestrator) Run(ctx context.Context, opts models.MergeOptions) (*Result, error) {
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one input video is required", models.ErrInvalidOption)
	}

	result := &Result{}
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, msg)
		o.logger.Printf("[Pipeline] Warning: %s", msg)
	}

	if err := o.checkInputs(&opts, warn); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(o.tempRoot, "mergejob-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	o.logger.Printf("[Pipeline] Merging %d clips (merge=%s, voice=%v)", len(opts.Inputs), opts.Merge, opts.UseVoice)

	clips, err := o.probeAll(ctx, opts.Inputs)
	if err != nil {
		return nil, err
	}

	windows := o.planWindows(clips, opts, warn)
	canvas, fit, fps := planGeometry(opts.Merge, clips)
	o.logger.Printf("[Pipeline] Target canvas %dx%d @ %.3f fps (letterbox=%v)", canvas.Width, canvas.Height, fps, fit)

	segments, err := o.renderAll(ctx, workDir, clips, windows, canvas, fit, fps, opts)
	if err != nil {
		return nil, err
	}

	tl, err := o.media.Concat(ctx, segments, filepath.Join(workDir, "timeline.mp4"))
	if err != nil {
		return nil, fmt.Errorf("failed to concatenate segments: %w", err)
	}

	container := opts.Container
	if container == "" {
		container = models.ContainerMP4
	}
	outPath, err := OutputPathFor(opts.OutputPath, container)
	if err != nil {
		return nil, err
	}

	if err := o.attachAudio(ctx, workDir, tl, opts, outPath, warn); err != nil {
		os.Remove(outPath)
		return nil, err
	}

	result.OutputPath = outPath
	result.Duration = tl.Duration
	o.logger.Printf("[Pipeline] Merge complete: %s (%.3fs, %d warnings)", outPath, tl.Duration, len(result.Warnings))
	return result, nil
}

// checkInputs fails fast on missing sources before any rendering starts.
// A missing tail image only degrades the request, so it warns and clears the
// field instead.
func (o *Orchestrator) checkInputs(opts *models.MergeOptions, warn func(string, ...interface{})) error {
	for _, path := range opts.Inputs {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: input video %s", models.ErrInputNotFound, path)
		}
	}
	if opts.UseVoice && opts.VoiceTextFile != "" && !hasExplicitVoiceFile(*opts) {
		if _, err := os.Stat(opts.VoiceTextFile); err != nil {
			return fmt.Errorf("%w: narration text file %s", models.ErrInputNotFound, opts.VoiceTextFile)
		}
	}
	if opts.TailImage != "" {
		if _, err := os.Stat(opts.TailImage); err != nil {
			warn("tail image not found, skipping end card: %s", opts.TailImage)
			opts.TailImage = ""
		}
	}
	// An end card only applies for a positive duration.
	if opts.TailImage != "" && opts.TailDuration <= 0 {
		opts.TailImage = ""
	}
	return nil
}

func (o *Orchestrator) probeAll(ctx context.Context, inputs []string) ([]media.Clip, error) {
	clips := make([]media.Clip, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.renderLimit)
	for i, path := range inputs {
		g.Go(func() error {
			clip, err := o.media.Probe(gctx, path)
			if err != nil {
				return fmt.Errorf("failed to probe %s: %w", path, err)
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

func (o *Orchestrator) planWindows(clips []media.Clip, opts models.MergeOptions, warn func(string, ...interface{})) []timeline.Window {
	windows := make([]timeline.Window, len(clips))
	for i, clip := range clips {
		var spec timeline.TrimSpec
		if i < len(opts.Trims) {
			spec.Seconds = opts.Trims[i]
		}
		if i < len(opts.TrimAnchors) {
			spec.Anchor = opts.TrimAnchors[i]
		}
		w, clamped := timeline.Trim(clip.Duration, spec)
		if clamped {
			warn("trim of %.3fs exceeds %s (%.3fs), keeping the whole clip",
				spec.Seconds, filepath.Base(clip.Path), clip.Duration)
		}
		windows[i] = w
	}
	return windows
}

// planGeometry turns the merge strategy into a concrete canvas. KeepNative
// has no single target, so clips are letterboxed onto the largest geometry;
// the frame rate is always the highest of the set so no clip loses frames.
func planGeometry(strategy models.MergeStrategy, clips []media.Clip) (canvas timeline.Geometry, fit bool, fps float64) {
	geoms := make([]timeline.Geometry, len(clips))
	rates := make([]float64, len(clips))
	for i, c := range clips {
		geoms[i] = timeline.Geometry{Width: c.Width, Height: c.Height}
		rates[i] = c.FPS
	}

	canvas = timeline.PlanResolution(strategy, geoms)
	if canvas.IsZero() {
		canvas = timeline.MaxGeometry(geoms)
		fit = true
	}
	fps = timeline.MaxFPS(rates)
	if fps <= 0 {
		fps = 30
	}
	return canvas, fit, fps
}

// renderAll renders every segment concurrently, bounded by renderLimit. The
// tail end card, when present, becomes the last segment and shares the
// timeline's canvas and frame rate so stream-copy concatenation stays valid.
func (o *Orchestrator) renderAll(ctx context.Context, workDir string, clips []media.Clip, windows []timeline.Window, canvas timeline.Geometry, fit bool, fps float64, opts models.MergeOptions) ([]media.Segment, error) {
	count := len(clips)
	if opts.TailImage != "" {
		count++
	}
	segments := make([]media.Segment, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.renderLimit)
	for i := range clips {
		outPath := filepath.Join(workDir, fmt.Sprintf("segment_%02d.mp4", i))
		g.Go(func() error {
			seg, err := o.media.RenderSegment(gctx, clips[i], windows[i], canvas, fit, fps, outPath)
			if err != nil {
				return fmt.Errorf("failed to render segment %d: %w", i, err)
			}
			segments[i] = seg
			return nil
		})
	}
	if opts.TailImage != "" {
		idx := len(clips)
		outPath := filepath.Join(workDir, fmt.Sprintf("segment_%02d.mp4", idx))
		duration := opts.TailDuration
		g.Go(func() error {
			seg, err := o.media.RenderStill(gctx, opts.TailImage, duration, canvas, fit, fps, outPath)
			if err != nil {
				return fmt.Errorf("failed to render end card: %w", err)
			}
			segments[idx] = seg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return segments, nil
}

// attachAudio produces the final file at outPath: a plain repackage when no
// narration applies, otherwise the narration mix muxed over the timeline
// video. Both tracks are aligned to the timeline duration first, so the
// output never changes length.
func (o *Orchestrator) attachAudio(ctx context.Context, workDir string, tl media.Timeline, opts models.MergeOptions, outPath string, warn func(string, ...interface{})) error {
	useVoice := opts.UseVoice
	if useVoice {
		voiceTrack, ok, err := o.voice.Resolve(ctx, opts, warn)
		if err != nil {
			return err
		}
		if !ok {
			useVoice = false
		} else {
			targetMs := int(math.Round(tl.Duration * 1000))
			base, err := o.media.ExtractAudio(ctx, tl.Path)
			if err != nil {
				return fmt.Errorf("failed to extract timeline audio: %w", err)
			}
			mixed := audio.Mix(base.AlignTo(targetMs), voiceTrack.AlignTo(targetMs), opts.Mix)

			pcmPath := filepath.Join(workDir, "mixed.pcm")
			if err := os.WriteFile(pcmPath, mixed.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write mixed audio: %w", err)
			}
			if err := o.media.MuxAudio(ctx, tl.Path, pcmPath, outPath); err != nil {
				return fmt.Errorf("failed to mux narration: %w", err)
			}
			return nil
		}
	}
	if !useVoice {
		if err := o.media.Remux(ctx, tl.Path, outPath); err != nil {
			return fmt.Errorf("failed to package output: %w", err)
		}
	}
	return nil
}

// OutputPathFor normalizes the requested output path to the container's
// extension and creates the parent directory.
func OutputPathFor(path string, container models.Container) (string, error) {
	if path == "" {
		path = "merged_output" + container.Ext()
	}
	if ext := filepath.Ext(path); !strings.EqualFold(ext, container.Ext()) {
		path = strings.TrimSuffix(path, ext) + container.Ext()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return path, nil
}

func hasExplicitVoiceFile(opts models.MergeOptions) bool {
	path := strings.TrimSpace(opts.VoicePath)
	return path != "" && !strings.EqualFold(path, "none")
}
