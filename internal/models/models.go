package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the service layer and the surfaces.
var (
	ErrInvalidOption = errors.New("invalid option")
	ErrInputNotFound = errors.New("input not found")
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotReady   = errors.New("job not completed")
)

// MergeStrategy selects how clip resolutions are reconciled before concatenation.
type MergeStrategy string

const (
	MergeKeepNative   MergeStrategy = "keep_native"
	MergeScaleToMax   MergeStrategy = "scale_to_max"
	MergeScaleToFirst MergeStrategy = "scale_to_first"
)

// ParseMergeStrategy validates a wire/flag value into a MergeStrategy.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeKeepNative, MergeScaleToMax, MergeScaleToFirst:
		return MergeStrategy(s), nil
	}
	return "", fmt.Errorf("%w: merge_mode must be keep_native, scale_to_max or scale_to_first", ErrInvalidOption)
}

// MixStrategy selects how the narration track is combined with the timeline audio.
type MixStrategy string

const (
	MixReplace         MixStrategy = "replace"
	MixBlendHalf       MixStrategy = "blend_half"
	MixBackgroundThird MixStrategy = "background_third"
)

func ParseMixStrategy(s string) (MixStrategy, error) {
	switch MixStrategy(s) {
	case MixReplace, MixBlendHalf, MixBackgroundThird:
		return MixStrategy(s), nil
	}
	return "", fmt.Errorf("%w: mix_mode must be replace, blend_half or background_third", ErrInvalidOption)
}

// VoicePersona is the requested narration voice type for speech synthesis.
type VoicePersona string

const (
	PersonaDefault VoicePersona = "default"
	PersonaMale    VoicePersona = "male"
	PersonaFemale  VoicePersona = "female"
)

func ParseVoicePersona(s string) (VoicePersona, error) {
	switch VoicePersona(s) {
	case PersonaDefault, PersonaMale, PersonaFemale:
		return VoicePersona(s), nil
	}
	return "", fmt.Errorf("%w: persona must be default, male or female", ErrInvalidOption)
}

// Container selects the output container; the codec profile is always H.264/AAC.
type Container string

const (
	ContainerMP4 Container = "mp4"
	ContainerMOV Container = "mov"
	ContainerMKV Container = "mkv"
)

func ParseContainer(s string) (Container, error) {
	switch Container(s) {
	case ContainerMP4, ContainerMOV, ContainerMKV:
		return Container(s), nil
	}
	return "", fmt.Errorf("%w: output_format must be mp4, mov or mkv", ErrInvalidOption)
}

// Ext returns the container's file extension including the dot.
func (c Container) Ext() string {
	return "." + string(c)
}

// TrimAnchor says which end of a clip a trim keeps.
type TrimAnchor string

const (
	AnchorHead TrimAnchor = "head" // keep the first N seconds
	AnchorTail TrimAnchor = "tail" // keep the last N seconds
)

func ParseTrimAnchor(s string) (TrimAnchor, error) {
	switch TrimAnchor(s) {
	case AnchorHead, AnchorTail:
		return TrimAnchor(s), nil
	}
	return "", fmt.Errorf("%w: trim anchor must be head or tail", ErrInvalidOption)
}

// MergeOptions is a fully validated merge request, shared by the CLI, the GUI
// and the job service. All enum fields hold already-parsed values.
type MergeOptions struct {
	Inputs        []string
	OutputPath    string
	Merge         MergeStrategy
	UseVoice      bool
	VoicePath     string
	VoiceTextFile string
	Mix           MixStrategy
	Persona       VoicePersona
	Container     Container
	Trims         []float64
	TrimAnchors   []TrimAnchor
	TailImage     string
	TailDuration  float64
}

// JobStatus is the lifecycle state of an async merge job.
// Transitions are monotonic: pending -> running -> done|error.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Job is an in-memory job record. It is created on submission, mutated only
// by its own worker, and retained for the process lifetime.
type Job struct {
	ID          string
	Status      JobStatus
	Options     MergeOptions
	OutputPath  string
	OutputKey   string
	OutputURL   string
	Error       string
	Warnings    []string
	TempFiles   []string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// SubmitResponse is returned by POST /api/merge.
type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// StatusResponse is returned by GET /api/status/{jobID}.
type StatusResponse struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	OutputPath string    `json:"output_path,omitempty"`
	OutputURL  string    `json:"output_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Voice is one entry of a TTS engine's catalog.
type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}
