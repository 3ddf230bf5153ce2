package voice

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gendew/merge-video/internal/models"
)

// openaiVoices is the fixed catalog of the OpenAI speech endpoint.
var openaiVoices = []models.Voice{
	{ID: "alloy", Name: "Alloy", Gender: "neutral"},
	{ID: "echo", Name: "Echo", Gender: "male"},
	{ID: "fable", Name: "Fable", Gender: "neutral"},
	{ID: "onyx", Name: "Onyx", Gender: "male"},
	{ID: "nova", Name: "Nova", Gender: "female"},
	{ID: "shimmer", Name: "Shimmer", Gender: "female"},
}

// OpenAIEngine synthesizes narration with the OpenAI TTS API, returning MP3.
type OpenAIEngine struct {
	client *openai.Client
}

var _ Engine = (*OpenAIEngine)(nil)

func NewOpenAIEngine(apiKey string) *OpenAIEngine {
	return &OpenAIEngine{client: openai.NewClient(apiKey)}
}

func (e *OpenAIEngine) Name() string { return "openai" }

func (e *OpenAIEngine) ListVoices(ctx context.Context) ([]models.Voice, error) {
	out := make([]models.Voice, len(openaiVoices))
	copy(out, openaiVoices)
	return out, nil
}

func (e *OpenAIEngine) Synthesize(ctx context.Context, text, voiceID string) (*SynthesisResult, error) {
	voice := openai.VoiceAlloy
	if voiceID != "" {
		voice = openai.SpeechVoice(voiceID)
	}

	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai speech response: %w", err)
	}
	return &SynthesisResult{AudioData: data, Format: FormatMP3}, nil
}
