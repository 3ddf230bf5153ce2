// Package audio implements the narration mixing algebra on raw PCM.
// Everything works on interleaved stereo int16 at 48 kHz, which makes one
// millisecond exactly 96 samples, so duration alignment is sample-exact.
// ffmpeg is used only at the edges, to decode into and encode out of this
// format.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	SampleRate = 48000
	Channels   = 2

	samplesPerMs = SampleRate / 1000 * Channels
	framesPerMs  = SampleRate / 1000
)

// Track is an immutable PCM buffer. Every operation returns a new Track and
// leaves the receiver untouched.
type Track struct {
	samples []int16
}

// NewTrack wraps a copy of the given samples. An odd trailing sample is
// dropped so the track always holds whole stereo frames.
func NewTrack(samples []int16) Track {
	n := len(samples) - len(samples)%Channels
	out := make([]int16, n)
	copy(out, samples[:n])
	return Track{samples: out}
}

// Silence returns a track of zeros lasting durationMs.
func Silence(durationMs int) Track {
	if durationMs < 0 {
		durationMs = 0
	}
	return Track{samples: make([]int16, durationMs*samplesPerMs)}
}

// DurationMs returns the track length in whole milliseconds.
func (t Track) DurationMs() int {
	return len(t.samples) / samplesPerMs
}

// Len returns the number of samples.
func (t Track) Len() int {
	return len(t.samples)
}

// Samples returns a copy of the raw samples.
func (t Track) Samples() []int16 {
	out := make([]int16, len(t.samples))
	copy(out, t.samples)
	return out
}

// Gain returns the track scaled by db decibels (negative attenuates).
func (t Track) Gain(db float64) Track {
	factor := dbFactor(db)
	out := make([]int16, len(t.samples))
	for i, s := range t.samples {
		out[i] = clipSample(float64(s) * factor)
	}
	return Track{samples: out}
}

// Overlay mixes other on top of t by sample addition. The result keeps t's
// length; a shorter overlay leaves the remainder of t unchanged.
func (t Track) Overlay(other Track) Track {
	out := make([]int16, len(t.samples))
	copy(out, t.samples)
	n := len(other.samples)
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = clipSample(float64(t.samples[i]) + float64(other.samples[i]))
	}
	return Track{samples: out}
}

// FadeOut applies a linear fade to zero over the last ms milliseconds,
// clamped to the track length.
func (t Track) FadeOut(ms int) Track {
	out := make([]int16, len(t.samples))
	copy(out, t.samples)

	frames := len(out) / Channels
	fadeFrames := ms * framesPerMs
	if fadeFrames > frames {
		fadeFrames = frames
	}
	if fadeFrames <= 0 {
		return Track{samples: out}
	}

	denom := float64(fadeFrames - 1)
	if denom < 1 {
		denom = 1
	}
	start := frames - fadeFrames
	for f := start; f < frames; f++ {
		g := float64(frames-1-f) / denom
		for c := 0; c < Channels; c++ {
			i := f*Channels + c
			out[i] = clipSample(float64(out[i]) * g)
		}
	}
	return Track{samples: out}
}

// Truncate returns the first ms milliseconds of the track.
func (t Track) Truncate(ms int) Track {
	n := ms * samplesPerMs
	if n > len(t.samples) {
		n = len(t.samples)
	}
	if n < 0 {
		n = 0
	}
	out := make([]int16, n)
	copy(out, t.samples[:n])
	return Track{samples: out}
}

// Append returns t followed by other.
func (t Track) Append(other Track) Track {
	out := make([]int16, 0, len(t.samples)+len(other.samples))
	out = append(out, t.samples...)
	out = append(out, other.samples...)
	return Track{samples: out}
}

// AlignTo pads or truncates the track to exactly targetMs milliseconds. A
// short track is faded out over at most one second before silence padding, so
// the join is never a hard cut. A long track is cut at the target. Aligning a
// track already at the target is a no-op.
func (t Track) AlignTo(targetMs int) Track {
	target := targetMs * samplesPerMs
	switch {
	case len(t.samples) == target:
		return t
	case len(t.samples) > target:
		return t.Truncate(targetMs)
	}

	fade := t.DurationMs()
	if fade > 1000 {
		fade = 1000
	}
	faded := t.FadeOut(fade)
	out := make([]int16, target)
	copy(out, faded.samples)
	return Track{samples: out}
}

// Bytes encodes the track as little-endian s16le, the layout ffmpeg reads
// back with "-f s16le -ar 48000 -ac 2".
func (t Track) Bytes() []byte {
	out := make([]byte, len(t.samples)*2)
	for i, s := range t.samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FromBytes decodes little-endian s16le data into a Track. A trailing odd
// byte is dropped.
func FromBytes(data []byte) Track {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return NewTrack(samples)
}

func clipSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// dbFactor converts decibels to a linear amplitude factor.
func dbFactor(db float64) float64 {
	return math.Pow(10, db/20)
}
