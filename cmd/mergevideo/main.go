package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gendew/merge-video/internal/config"
	"github.com/gendew/merge-video/internal/gui"
	"github.com/gendew/merge-video/internal/media"
	"github.com/gendew/merge-video/internal/models"
	"github.com/gendew/merge-video/internal/pipeline"
	"github.com/gendew/merge-video/internal/voice"
)

var (
	inputs        []string
	output        string
	mergeMode     string
	useVoice      bool
	voicePath     string
	voiceTextFile string
	mixMode       string
	persona       string
	format        string
	trims         []float64
	trimAnchors   []string
	tailImage     string
	tailDuration  float64
)

func main() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mergevideo",
	Short:         "Merge video clips into one file with optional narration",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMerge,
}

func init() {
	f := rootCmd.Flags()
	f.StringArrayVar(&inputs, "input", nil, "Input video file (repeat in playback order)")
	f.StringVar(&output, "output", "", "Output file path (default merged_output.<format>)")
	f.StringVar(&mergeMode, "merge-mode", "keep_native", "Resolution strategy: keep_native, scale_to_max or scale_to_first")
	f.BoolVar(&useVoice, "use-voice", false, "Overlay a narration track")
	f.StringVar(&voicePath, "voice", "", "Narration audio file (skips text-to-speech)")
	f.StringVar(&voiceTextFile, "voice-text-file", "", "Text file to synthesize narration from")
	f.StringVar(&mixMode, "mix-mode", "blend_half", "Narration mix: replace, blend_half or background_third")
	f.StringVar(&persona, "persona", "default", "Synthesized voice persona: default, male or female")
	f.StringVar(&format, "format", "mp4", "Output container: mp4, mov or mkv")
	f.Float64SliceVar(&trims, "trim", nil, "Seconds of clip N to keep (repeat per input, 0 = whole clip)")
	f.StringArrayVar(&trimAnchors, "trim-anchor", nil, "Which end of clip N to keep: head or tail (repeat per input)")
	f.StringVar(&tailImage, "tail-image", "", "Still image appended after the last clip")
	f.Float64Var(&tailDuration, "tail-duration", 3, "Seconds the tail image is shown for")

	rootCmd.AddCommand(voicesCmd)
	rootCmd.AddCommand(guiCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	if len(inputs) == 0 {
		return errors.New("at least one --input is required")
	}

	opts := models.MergeOptions{
		Inputs:        inputs,
		OutputPath:    output,
		UseVoice:      useVoice,
		VoicePath:     voicePath,
		VoiceTextFile: voiceTextFile,
		Trims:         trims,
		TailImage:     tailImage,
		TailDuration:  tailDuration,
	}

	var err error
	if opts.Merge, err = models.ParseMergeStrategy(mergeMode); err != nil {
		return err
	}
	if opts.Mix, err = models.ParseMixStrategy(mixMode); err != nil {
		return err
	}
	if opts.Persona, err = models.ParseVoicePersona(persona); err != nil {
		return err
	}
	if opts.Container, err = models.ParseContainer(format); err != nil {
		return err
	}
	for _, a := range trimAnchors {
		anchor, err := models.ParseTrimAnchor(a)
		if err != nil {
			return err
		}
		opts.TrimAnchors = append(opts.TrimAnchors, anchor)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	engine, err := media.NewEngine(logger)
	if err != nil {
		return err
	}

	resolver := voice.NewResolver(newTTSEngine(cfg), engine.FFmpegPath(), logger)
	orch := pipeline.NewOrchestrator(engine, resolver, cfg.TempDir, cfg.RenderConcurrency, logger)

	result, err := orch.Run(context.Background(), opts)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", w)
	}
	cmd.Printf("Merged %d clip(s) into %s (%.2f seconds)\n", len(inputs), result.OutputPath, result.Duration)
	return nil
}

var voicesCmd = &cobra.Command{
	Use:           "voices",
	Short:         "List the configured TTS engine's voices",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		engine := newTTSEngine(cfg)
		if engine == nil {
			return errors.New("no TTS provider configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		voices, err := engine.ListVoices(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("Voices for %s:\n", engine.Name())
		for _, v := range voices {
			cmd.Printf("  %-12s %-8s %s\n", v.ID, v.Gender, v.Name)
		}
		return nil
	},
}

var guiCmd = &cobra.Command{
	Use:           "gui",
	Short:         "Launch the desktop editor",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := log.New(os.Stderr, "", log.LstdFlags)
		engine, err := media.NewEngine(logger)
		if err != nil {
			return err
		}

		resolver := voice.NewResolver(newTTSEngine(cfg), engine.FFmpegPath(), logger)
		orch := pipeline.NewOrchestrator(engine, resolver, cfg.TempDir, cfg.RenderConcurrency, logger)

		gui.Run(orch, logger)
		return nil
	},
}

// newTTSEngine picks the narration synthesis provider. A nil return is valid:
// the resolver then skips text narration with a warning.
func newTTSEngine(cfg *config.Config) voice.Engine {
	switch cfg.TTSProvider {
	case "openai":
		return voice.NewOpenAIEngine(cfg.OpenAIKey)
	case "gemini":
		return voice.NewGeminiEngine(cfg.GeminiKey)
	default:
		if cfg.OpenAIKey != "" {
			return voice.NewOpenAIEngine(cfg.OpenAIKey)
		}
		if cfg.GeminiKey != "" {
			return voice.NewGeminiEngine(cfg.GeminiKey)
		}
	}
	return nil
}
