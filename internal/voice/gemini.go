package voice

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/gendew/merge-video/internal/models"
)

const (
	geminiTTSModel = "gemini-2.5-flash-preview-tts"

	// The Gemini TTS endpoint returns headerless 24 kHz mono PCM.
	geminiSampleRate = 24000
	geminiChannels   = 1
)

// geminiVoices is a curated subset of the prebuilt voice catalog.
var geminiVoices = []models.Voice{
	{ID: "Kore", Name: "Kore", Gender: "female"},
	{ID: "Charon", Name: "Charon", Gender: "male"},
	{ID: "Puck", Name: "Puck", Gender: "male"},
	{ID: "Fenrir", Name: "Fenrir", Gender: "male"},
	{ID: "Leda", Name: "Leda", Gender: "female"},
	{ID: "Orus", Name: "Orus", Gender: "male"},
	{ID: "Zephyr", Name: "Zephyr", Gender: "female"},
	{ID: "Aoede", Name: "Aoede", Gender: "female"},
}

// GeminiEngine synthesizes narration with the Gemini TTS models, returning
// raw PCM.
type GeminiEngine struct {
	apiKey string
	model  string
}

var _ Engine = (*GeminiEngine)(nil)

func NewGeminiEngine(apiKey string) *GeminiEngine {
	return &GeminiEngine{apiKey: apiKey, model: geminiTTSModel}
}

func (e *GeminiEngine) Name() string { return "gemini" }

func (e *GeminiEngine) ListVoices(ctx context.Context) ([]models.Voice, error) {
	out := make([]models.Voice, len(geminiVoices))
	copy(out, geminiVoices)
	return out, nil
}

func (e *GeminiEngine) Synthesize(ctx context.Context, text, voiceID string) (*SynthesisResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if voiceID == "" {
		voiceID = "Kore"
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceID},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, e.model, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("gemini speech request failed: %w", err)
	}
	data := extractInlineAudio(resp)
	if len(data) == 0 {
		return nil, fmt.Errorf("gemini speech response contained no audio")
	}
	return &SynthesisResult{
		AudioData:  data,
		Format:     FormatRawPCM,
		SampleRate: geminiSampleRate,
		Channels:   geminiChannels,
	}, nil
}

func extractInlineAudio(resp *genai.GenerateContentResponse) []byte {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
