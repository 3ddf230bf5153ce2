package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// probeResult matches the ffprobe JSON output structure.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe reads a source video's geometry, frame rate, duration and audio
// presence.
func (e *Engine) Probe(ctx context.Context, path string) (Clip, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Clip{}, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return Clip{}, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	clip := Clip{Path: path}
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		clip.Duration = dur
	}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			clip.Width = stream.Width
			clip.Height = stream.Height
			clip.FPS = parseFPS(stream.RFrameRate)
		case "audio":
			clip.HasAudio = true
		}
	}

	if clip.Width == 0 || clip.Height == 0 {
		return Clip{}, fmt.Errorf("no video stream in %s", path)
	}
	return clip, nil
}

// parseFPS parses ffprobe's fractional frame rate, e.g. "30000/1001".
func parseFPS(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
