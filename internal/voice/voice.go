// Package voice resolves the narration track for a merge: either a supplied
// audio file, or text synthesized through a TTS engine with a persona-matched
// voice.
package voice

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/gendew/merge-video/internal/audio"
	"github.com/gendew/merge-video/internal/models"
)

// Audio formats a synthesis result can arrive in.
const (
	FormatMP3    = "mp3"
	FormatRawPCM = "pcm" // headerless s16le, described by SampleRate/Channels
)

// SynthesisResult is the common response type from any TTS engine.
type SynthesisResult struct {
	AudioData  []byte
	Format     string
	SampleRate int // set for FormatRawPCM
	Channels   int // set for FormatRawPCM
}

// Engine is the interface a TTS provider must implement. An empty voiceID
// selects the engine's default voice.
type Engine interface {
	Name() string
	ListVoices(ctx context.Context) ([]models.Voice, error)
	Synthesize(ctx context.Context, text, voiceID string) (*SynthesisResult, error)
}

// Resolver turns a merge request's voice options into a PCM track.
type Resolver struct {
	engine     Engine // nil when no TTS provider is configured
	ffmpegPath string
	logger     *log.Logger

	decodeFile  func(ctx context.Context, ffmpegPath, path string) (audio.Track, error)
	decodeBytes func(ctx context.Context, ffmpegPath string, data []byte, inputArgs ...string) (audio.Track, error)
}

func NewResolver(engine Engine, ffmpegPath string, logger *log.Logger) *Resolver {
	return &Resolver{
		engine:      engine,
		ffmpegPath:  ffmpegPath,
		logger:      logger,
		decodeFile:  audio.DecodeFile,
		decodeBytes: audio.DecodeBytes,
	}
}

// Resolve returns the narration track. ok is false when no usable voice input
// exists; the caller then skips the mixing stage. An explicit file path wins
// over text synthesis; the literal value "none" means no file was supplied.
func (r *Resolver) Resolve(ctx context.Context, opts models.MergeOptions, warn func(string, ...interface{})) (audio.Track, bool, error) {
	if path := strings.TrimSpace(opts.VoicePath); path != "" && !strings.EqualFold(path, "none") {
		if _, err := os.Stat(path); err != nil {
			warn("narration file not found, skipping narration: %s", path)
			return audio.Track{}, false, nil
		}
		track, err := r.decodeFile(ctx, r.ffmpegPath, path)
		if err != nil {
			return audio.Track{}, false, fmt.Errorf("failed to load narration file %s: %w", path, err)
		}
		r.logger.Printf("[Voice] Loaded narration file %s (%d ms)", path, track.DurationMs())
		return track, true, nil
	}

	if opts.VoiceTextFile == "" {
		warn("no narration file or text provided, skipping narration")
		return audio.Track{}, false, nil
	}

	content, err := os.ReadFile(opts.VoiceTextFile)
	if err != nil {
		if os.IsNotExist(err) {
			return audio.Track{}, false, fmt.Errorf("%w: narration text file %s", models.ErrInputNotFound, opts.VoiceTextFile)
		}
		return audio.Track{}, false, fmt.Errorf("failed to read narration text file: %w", err)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		warn("narration text file %s is empty, skipping narration", opts.VoiceTextFile)
		return audio.Track{}, false, nil
	}

	if r.engine == nil {
		warn("no TTS engine configured, skipping narration")
		return audio.Track{}, false, nil
	}

	voiceID := r.selectVoice(ctx, opts.Persona, warn)
	r.logger.Printf("[Voice] Synthesizing %d chars via %s (voice=%s)", len(text), r.engine.Name(), displayVoice(voiceID))

	result, err := r.engine.Synthesize(ctx, text, voiceID)
	if err != nil {
		return audio.Track{}, false, fmt.Errorf("speech synthesis failed: %w", err)
	}
	track, err := r.decodeSynthesis(ctx, result)
	if err != nil {
		return audio.Track{}, false, fmt.Errorf("failed to decode synthesized audio: %w", err)
	}
	return track, true, nil
}

// selectVoice maps a persona onto a catalog voice id, falling back to the
// engine default with a warning when nothing matches.
func (r *Resolver) selectVoice(ctx context.Context, persona models.VoicePersona, warn func(string, ...interface{})) string {
	if persona == "" || persona == models.PersonaDefault {
		return ""
	}
	voices, err := r.engine.ListVoices(ctx)
	if err != nil {
		warn("could not list %s voices, using engine default: %v", r.engine.Name(), err)
		return ""
	}
	if id, ok := matchPersona(voices, persona); ok {
		return id
	}
	warn("no %s voice in the %s catalog, using engine default", persona, r.engine.Name())
	return ""
}

// matchPersona finds a voice for the persona keyword: an exact gender tag
// first, then whole-word matches on name and id. Word matching keeps a
// "female" label from satisfying the male persona.
func matchPersona(voices []models.Voice, persona models.VoicePersona) (string, bool) {
	keyword := strings.ToLower(string(persona))
	for _, v := range voices {
		if strings.EqualFold(v.Gender, keyword) {
			return v.ID, true
		}
	}
	for _, v := range voices {
		words := strings.FieldsFunc(strings.ToLower(v.Name+" "+v.ID), func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		for _, w := range words {
			if w == keyword {
				return v.ID, true
			}
		}
	}
	return "", false
}

func (r *Resolver) decodeSynthesis(ctx context.Context, result *SynthesisResult) (audio.Track, error) {
	if result.Format == FormatRawPCM {
		return r.decodeBytes(ctx, r.ffmpegPath, result.AudioData,
			"-f", "s16le",
			"-ar", strconv.Itoa(result.SampleRate),
			"-ac", strconv.Itoa(result.Channels))
	}
	return r.decodeBytes(ctx, r.ffmpegPath, result.AudioData)
}

func displayVoice(id string) string {
	if id == "" {
		return "default"
	}
	return id
}
