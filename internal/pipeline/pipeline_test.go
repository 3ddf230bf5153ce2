package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gendew/merge-video/internal/audio"
	"github.com/gendew/merge-video/internal/media"
	"github.com/gendew/merge-video/internal/models"
	"github.com/gendew/merge-video/internal/timeline"
)

type renderCall struct {
	clip   media.Clip
	window timeline.Window
	canvas timeline.Geometry
	fit    bool
	fps    float64
}

type stillCall struct {
	imagePath string
	duration  float64
	canvas    timeline.Geometry
	fps       float64
}

// fakeMedia satisfies MediaEngine without touching ffmpeg. Durations flow
// through it the way the real engine propagates them: a rendered segment is
// as long as its window, the timeline as long as its segments.
type fakeMedia struct {
	mu         sync.Mutex
	clips      map[string]media.Clip
	probeErr   error
	renderErr  error
	baseAudio  audio.Track
	renders    []renderCall
	stills     []stillCall
	concats    int
	muxCalls   int
	remuxCalls int
	muxPCMLen  int
}

func (f *fakeMedia) Probe(ctx context.Context, path string) (media.Clip, error) {
	if f.probeErr != nil {
		return media.Clip{}, f.probeErr
	}
	clip, ok := f.clips[path]
	if !ok {
		return media.Clip{}, fmt.Errorf("no video stream in %s", path)
	}
	return clip, nil
}

func (f *fakeMedia) RenderSegment(ctx context.Context, clip media.Clip, window timeline.Window, canvas timeline.Geometry, fit bool, fps float64, outPath string) (media.Segment, error) {
	if f.renderErr != nil {
		return media.Segment{}, f.renderErr
	}
	f.mu.Lock()
	f.renders = append(f.renders, renderCall{clip, window, canvas, fit, fps})
	f.mu.Unlock()
	return media.Segment{Path: outPath, Duration: window.Duration()}, nil
}

func (f *fakeMedia) RenderStill(ctx context.Context, imagePath string, duration float64, canvas timeline.Geometry, fit bool, fps float64, outPath string) (media.Segment, error) {
	f.mu.Lock()
	f.stills = append(f.stills, stillCall{imagePath, duration, canvas, fps})
	f.mu.Unlock()
	return media.Segment{Path: outPath, Duration: duration}, nil
}

func (f *fakeMedia) Concat(ctx context.Context, segments []media.Segment, outPath string) (media.Timeline, error) {
	f.concats++
	total := 0.0
	for _, s := range segments {
		total += s.Duration
	}
	return media.Timeline{Path: outPath, Duration: total}, nil
}

func (f *fakeMedia) ExtractAudio(ctx context.Context, videoPath string) (audio.Track, error) {
	return f.baseAudio, nil
}

func (f *fakeMedia) MuxAudio(ctx context.Context, videoPath, pcmPath, outPath string) error {
	data, err := os.ReadFile(pcmPath)
	if err != nil {
		return err
	}
	f.muxCalls++
	f.muxPCMLen = len(data)
	return os.WriteFile(outPath, []byte("video"), 0644)
}

func (f *fakeMedia) Remux(ctx context.Context, videoPath, outPath string) error {
	f.remuxCalls++
	return os.WriteFile(outPath, []byte("video"), 0644)
}

type fakeVoice struct {
	track   audio.Track
	ok      bool
	err     error
	warnMsg string
	calls   int
}

func (f *fakeVoice) Resolve(ctx context.Context, opts models.MergeOptions, warn func(string, ...interface{})) (audio.Track, bool, error) {
	f.calls++
	if f.warnMsg != "" {
		warn(f.warnMsg)
	}
	return f.track, f.ok, f.err
}

func makeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("fake video"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func newTestOrchestrator(t *testing.T, m MediaEngine, v VoiceResolver) *Orchestrator {
	t.Helper()
	return NewOrchestrator(m, v, t.TempDir(), 2, log.New(io.Discard, "", 0))
}

func TestRunConcatenatesDurations(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	b := makeInput(t, dir, "b.mp4")

	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 1280, Height: 720, FPS: 30, Duration: 3, HasAudio: true},
		b: {Path: b, Width: 1280, Height: 720, FPS: 30, Duration: 5, HasAudio: true},
	}}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a, b},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeScaleToMax,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Duration != 8 {
		t.Errorf("duration = %v, want 8", res.Duration)
	}
	if fm.remuxCalls != 1 || fm.muxCalls != 0 {
		t.Errorf("remux=%d mux=%d, want a plain repackage without narration", fm.remuxCalls, fm.muxCalls)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestRunVoiceReplaceKeepsTimelineLength(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")

	fm := &fakeMedia{
		clips: map[string]media.Clip{
			a: {Path: a, Width: 1920, Height: 1080, FPS: 30, Duration: 10, HasAudio: true},
		},
		// Deliberately short so alignment has to pad it.
		baseAudio: audio.Silence(2000),
	}
	fv := &fakeVoice{track: audio.Silence(4000), ok: true}
	o := newTestOrchestrator(t, fm, fv)

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeKeepNative,
		UseVoice:   true,
		Mix:        models.MixReplace,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Duration != 10 {
		t.Errorf("duration = %v, want 10", res.Duration)
	}
	if fm.muxCalls != 1 || fm.remuxCalls != 0 {
		t.Errorf("mux=%d remux=%d, want the narration mux path", fm.muxCalls, fm.remuxCalls)
	}
	// 10s of interleaved stereo s16le at 48 kHz.
	wantBytes := 10000 * audio.SampleRate / 1000 * audio.Channels * 2
	if fm.muxPCMLen != wantBytes {
		t.Errorf("mixed pcm = %d bytes, want %d", fm.muxPCMLen, wantBytes)
	}
}

func TestRunPlansCanvasPerStrategy(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	b := makeInput(t, dir, "b.mp4")
	clips := map[string]media.Clip{
		a: {Path: a, Width: 100, Height: 100, FPS: 30, Duration: 2, HasAudio: true},
		b: {Path: b, Width: 200, Height: 150, FPS: 25, Duration: 2, HasAudio: true},
	}

	tests := []struct {
		name       string
		strategy   models.MergeStrategy
		wantCanvas timeline.Geometry
		wantFit    bool
	}{
		{"scale to max", models.MergeScaleToMax, timeline.Geometry{Width: 200, Height: 150}, false},
		{"scale to first", models.MergeScaleToFirst, timeline.Geometry{Width: 100, Height: 100}, false},
		{"keep native letterboxes onto max", models.MergeKeepNative, timeline.Geometry{Width: 200, Height: 150}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeMedia{clips: clips}
			o := newTestOrchestrator(t, fm, &fakeVoice{})

			_, err := o.Run(context.Background(), models.MergeOptions{
				Inputs:     []string{a, b},
				OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
				Merge:      tt.strategy,
			})
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if len(fm.renders) != 2 {
				t.Fatalf("rendered %d segments, want 2", len(fm.renders))
			}
			for _, call := range fm.renders {
				if call.canvas != tt.wantCanvas || call.fit != tt.wantFit {
					t.Errorf("render canvas = %+v fit=%v, want %+v fit=%v",
						call.canvas, call.fit, tt.wantCanvas, tt.wantFit)
				}
				if call.fps != 30 {
					t.Errorf("render fps = %v, want the highest input rate 30", call.fps)
				}
			}
		})
	}
}

func TestRunTrimClampWarns(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 640, Height: 360, FPS: 24, Duration: 3, HasAudio: true},
	}}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeScaleToMax,
		Trims:      []float64{10},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Duration != 3 {
		t.Errorf("duration = %v, want the full clip 3", res.Duration)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "keeping the whole clip") {
		t.Errorf("warnings = %v, want a clamp warning", res.Warnings)
	}
}

func TestRunTailTrimKeepsEnd(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 640, Height: 360, FPS: 24, Duration: 9, HasAudio: true},
	}}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:      []string{a},
		OutputPath:  filepath.Join(dir, "out.mp4"),
		Merge:       models.MergeScaleToMax,
		Trims:       []float64{4},
		TrimAnchors: []models.TrimAnchor{models.AnchorTail},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Duration != 4 {
		t.Errorf("duration = %v, want 4", res.Duration)
	}
	if got := fm.renders[0].window; got.Start != 5 || got.End != 9 {
		t.Errorf("window = %+v, want [5,9]", got)
	}
}

func TestRunMissingInputFailsBeforeRendering(t *testing.T) {
	fm := &fakeMedia{clips: map[string]media.Clip{}}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	_, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{filepath.Join(t.TempDir(), "gone.mp4")},
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
	})
	if !errors.Is(err, models.ErrInputNotFound) {
		t.Fatalf("Run() error = %v, want ErrInputNotFound", err)
	}
	if len(fm.renders) != 0 {
		t.Errorf("rendered %d segments, want 0", len(fm.renders))
	}
}

func TestRunNoInputsRejected(t *testing.T) {
	o := newTestOrchestrator(t, &fakeMedia{}, &fakeVoice{})
	_, err := o.Run(context.Background(), models.MergeOptions{})
	if !errors.Is(err, models.ErrInvalidOption) {
		t.Fatalf("Run() error = %v, want ErrInvalidOption", err)
	}
}

func TestRunTailImage(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	img := makeInput(t, dir, "card.png")
	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 1280, Height: 720, FPS: 30, Duration: 5, HasAudio: true},
	}}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:       []string{a},
		OutputPath:   filepath.Join(dir, "out.mp4"),
		Merge:        models.MergeScaleToMax,
		TailImage:    img,
		TailDuration: 3,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(fm.stills) != 1 {
		t.Fatalf("rendered %d stills, want 1", len(fm.stills))
	}
	if fm.stills[0].duration != 3 {
		t.Errorf("still duration = %v, want 3", fm.stills[0].duration)
	}
	if res.Duration != 8 {
		t.Errorf("duration = %v, want clip plus end card = 8", res.Duration)
	}
}

func TestRunTailImageZeroDurationSkipped(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	img := makeInput(t, dir, "card.png")
	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 1280, Height: 720, FPS: 30, Duration: 5, HasAudio: true},
	}}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeScaleToMax,
		TailImage:  img,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(fm.stills) != 0 {
		t.Errorf("rendered %d stills, want none without a duration", len(fm.stills))
	}
	if res.Duration != 5 {
		t.Errorf("duration = %v, want the bare clip", res.Duration)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
}

func TestRunTailImageMissingWarnsAndSkips(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 1280, Height: 720, FPS: 30, Duration: 5, HasAudio: true},
	}}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeScaleToMax,
		TailImage:  filepath.Join(dir, "missing.png"),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(fm.stills) != 0 {
		t.Errorf("rendered %d stills, want 0", len(fm.stills))
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "end card") {
		t.Errorf("warnings = %v, want a skipped end card warning", res.Warnings)
	}
}

func TestRunVoiceSkipFallsBackToRemux(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 1280, Height: 720, FPS: 30, Duration: 5, HasAudio: true},
	}}
	fv := &fakeVoice{ok: false, warnMsg: "no narration file or text provided, skipping narration"}
	o := newTestOrchestrator(t, fm, fv)

	res, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeScaleToMax,
		UseVoice:   true,
		Mix:        models.MixBlendHalf,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if fv.calls != 1 {
		t.Errorf("voice resolver called %d times, want 1", fv.calls)
	}
	if fm.remuxCalls != 1 || fm.muxCalls != 0 {
		t.Errorf("remux=%d mux=%d, want a silent fallback to plain packaging", fm.remuxCalls, fm.muxCalls)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want the resolver's warning", res.Warnings)
	}
}

func TestRunVoiceErrorIsFatal(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	fm := &fakeMedia{clips: map[string]media.Clip{
		a: {Path: a, Width: 1280, Height: 720, FPS: 30, Duration: 5, HasAudio: true},
	}}
	fv := &fakeVoice{err: errors.New("synthesis exploded")}
	o := newTestOrchestrator(t, fm, fv)

	_, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeScaleToMax,
		UseVoice:   true,
	})
	if err == nil {
		t.Fatal("Run() error = nil, want the resolver failure")
	}
}

func TestRunRenderErrorIsFatal(t *testing.T) {
	dir := t.TempDir()
	a := makeInput(t, dir, "a.mp4")
	fm := &fakeMedia{
		clips: map[string]media.Clip{
			a: {Path: a, Width: 1280, Height: 720, FPS: 30, Duration: 5, HasAudio: true},
		},
		renderErr: errors.New("encoder crashed"),
	}
	o := newTestOrchestrator(t, fm, &fakeVoice{})

	_, err := o.Run(context.Background(), models.MergeOptions{
		Inputs:     []string{a},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Merge:      models.MergeScaleToMax,
	})
	if err == nil || !strings.Contains(err.Error(), "failed to render") {
		t.Fatalf("Run() error = %v, want a render failure", err)
	}
}

func TestOutputPathFor(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name      string
		path      string
		container models.Container
		want      string
	}{
		{"extension replaced", filepath.Join(dir, "out.avi"), models.ContainerMP4, filepath.Join(dir, "out.mp4")},
		{"extension appended", filepath.Join(dir, "out"), models.ContainerMKV, filepath.Join(dir, "out.mkv")},
		{"case insensitive match", filepath.Join(dir, "out.MP4"), models.ContainerMP4, filepath.Join(dir, "out.MP4")},
		{"mov container", filepath.Join(dir, "clip.mp4"), models.ContainerMOV, filepath.Join(dir, "clip.mov")},
		{"empty path gets a default", "", models.ContainerMP4, "merged_output.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputPathFor(tt.path, tt.container)
			if err != nil {
				t.Fatalf("OutputPathFor() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("OutputPathFor(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestOutputPathForCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deep")
	got, err := OutputPathFor(filepath.Join(dir, "out.mp4"), models.ContainerMP4)
	if err != nil {
		t.Fatalf("OutputPathFor() error: %v", err)
	}
	if info, err := os.Stat(filepath.Dir(got)); err != nil || !info.IsDir() {
		t.Errorf("parent of %q not created: %v", got, err)
	}
}
