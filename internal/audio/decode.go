package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// outputArgs tell ffmpeg to emit the package's canonical PCM layout.
func outputArgs() []string {
	return []string{
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	}
}

// DecodeFile decodes the audio of any media file (audio or video) into a
// Track, resampling through ffmpeg. A file without an audio stream decodes to
// an empty track.
func DecodeFile(ctx context.Context, ffmpegPath, path string) (Track, error) {
	args := append([]string{"-i", path}, outputArgs()...)
	return runDecode(ctx, ffmpegPath, args, nil)
}

// DecodeBytes decodes in-memory encoded audio (an mp3 download, raw TTS PCM)
// into a Track. inputArgs describe the input when it is headerless, e.g.
// "-f s16le -ar 24000 -ac 1" for raw synthesis output; leave them empty for
// self-describing formats.
func DecodeBytes(ctx context.Context, ffmpegPath string, data []byte, inputArgs ...string) (Track, error) {
	args := append(append([]string{}, inputArgs...), "-i", "pipe:0")
	args = append(args, outputArgs()...)
	return runDecode(ctx, ffmpegPath, args, data)
}

func runDecode(ctx context.Context, ffmpegPath string, args []string, stdin []byte) (Track, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return Track{}, fmt.Errorf("ffmpeg decode failed: %w: %s", err, detail)
		}
		return Track{}, fmt.Errorf("ffmpeg decode failed: %w", err)
	}
	return FromBytes(stdout.Bytes()), nil
}
