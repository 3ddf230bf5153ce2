package audio

import "github.com/gendew/merge-video/internal/models"

// Gain levels for the two blending strategies: halving the base is roughly
// -6 dB, pushing the voice to ~30% perceived loudness is roughly -10 dB.
const (
	blendBaseGainDB       = -6
	backgroundVoiceGainDB = -10
)

// Mix combines the base and voice tracks, both already aligned to the
// timeline duration, and applies the closing one-second fade-out (shorter
// tracks fade over their whole length). Inputs are never modified.
func Mix(base, voice Track, strategy models.MixStrategy) Track {
	var out Track
	switch strategy {
	case models.MixReplace:
		out = voice
	case models.MixBackgroundThird:
		out = base.Overlay(voice.Gain(backgroundVoiceGainDB))
	default: // MixBlendHalf
		out = base.Gain(blendBaseGainDB).Overlay(voice)
	}
	return out.FadeOut(1000)
}
