// Package gui is the desktop front end. It collects the same merge options
// as the HTTP form and the CLI flags, then runs the shared pipeline on a
// background goroutine so the window stays responsive.
package gui

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fynestorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"github.com/gendew/merge-video/internal/models"
	"github.com/gendew/merge-video/internal/pipeline"
)

var videoExtensions = []string{".mp4", ".mov", ".mkv"}

// clipRow is one input video plus its trim controls.
type clipRow struct {
	path   string
	trim   *widget.Entry
	anchor *widget.Select
}

// logViewWriter tees pipeline log lines into the window's log view. Writes
// arrive from the worker goroutine, so every UI touch goes through fyne.Do.
type logViewWriter struct {
	view *widget.Entry
}

func (w *logViewWriter) Write(p []byte) (int, error) {
	line := string(p)
	fyne.Do(func() {
		w.view.SetText(w.view.Text + line)
		w.view.CursorRow = len(strings.Split(w.view.Text, "\n"))
	})
	return len(p), nil
}

// Run opens the editor window and blocks until it is closed. The orchestrator
// logger is teed into the log view so pipeline progress shows up in the UI.
func Run(orch *pipeline.Orchestrator, logger *log.Logger) {
	a := app.NewWithID("com.gendew.mergevideo")
	w := a.NewWindow("Merge Video")
	w.Resize(fyne.NewSize(760, 680))

	var clips []*clipRow

	logView := widget.NewMultiLineEntry()
	logView.Wrapping = fyne.TextWrapWord
	logger.SetOutput(io.MultiWriter(os.Stderr, &logViewWriter{view: logView}))

	clipList := container.NewVBox()
	rebuildClips := func() {}
	rebuildClips = func() {
		clipList.Objects = nil
		for i, row := range clips {
			idx := i
			name := widget.NewLabel(fmt.Sprintf("%d. %s", i+1, filepath.Base(row.path)))
			remove := widget.NewButton("Remove", func() {
				clips = append(clips[:idx], clips[idx+1:]...)
				rebuildClips()
			})
			clipList.Add(container.NewBorder(nil, nil, name, remove,
				container.NewGridWithColumns(2,
					container.NewBorder(nil, nil, widget.NewLabel("Keep (s):"), nil, row.trim),
					container.NewBorder(nil, nil, widget.NewLabel("From:"), nil, row.anchor),
				)))
		}
		clipList.Refresh()
	}

	addClip := widget.NewButton("Add Clip...", func() {
		fd := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
			if err != nil || ur == nil {
				return
			}
			defer ur.Close()
			trim := widget.NewEntry()
			trim.SetPlaceHolder("0")
			anchor := widget.NewSelect([]string{string(models.AnchorHead), string(models.AnchorTail)}, nil)
			anchor.SetSelected(string(models.AnchorHead))
			clips = append(clips, &clipRow{path: ur.URI().Path(), trim: trim, anchor: anchor})
			rebuildClips()
		}, w)
		fd.SetFilter(fynestorage.NewExtensionFileFilter(videoExtensions))
		fd.Show()
	})

	mergeSelect := widget.NewSelect([]string{
		string(models.MergeKeepNative),
		string(models.MergeScaleToMax),
		string(models.MergeScaleToFirst),
	}, nil)
	mergeSelect.SetSelected(string(models.MergeKeepNative))

	useVoice := widget.NewCheck("Overlay narration", nil)

	voiceLabel := widget.NewLabel("(none)")
	var voicePath string
	pickVoice := widget.NewButton("Narration File...", func() {
		fd := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
			if err != nil || ur == nil {
				return
			}
			defer ur.Close()
			voicePath = ur.URI().Path()
			voiceLabel.SetText(filepath.Base(voicePath))
		}, w)
		fd.SetFilter(fynestorage.NewExtensionFileFilter([]string{".mp3", ".wav", ".m4a", ".aac", ".ogg"}))
		fd.Show()
	})
	clearVoice := widget.NewButton("Clear", func() {
		voicePath = ""
		voiceLabel.SetText("(none)")
	})

	voiceText := widget.NewMultiLineEntry()
	voiceText.SetPlaceHolder("Text to synthesize when no narration file is chosen")
	voiceText.Wrapping = fyne.TextWrapWord

	mixSelect := widget.NewSelect([]string{
		string(models.MixBlendHalf),
		string(models.MixReplace),
		string(models.MixBackgroundThird),
	}, nil)
	mixSelect.SetSelected(string(models.MixBlendHalf))

	personaSelect := widget.NewSelect([]string{
		string(models.PersonaDefault),
		string(models.PersonaMale),
		string(models.PersonaFemale),
	}, nil)
	personaSelect.SetSelected(string(models.PersonaDefault))

	tailLabel := widget.NewLabel("(none)")
	var tailPath string
	pickTail := widget.NewButton("Tail Image...", func() {
		fd := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
			if err != nil || ur == nil {
				return
			}
			defer ur.Close()
			tailPath = ur.URI().Path()
			tailLabel.SetText(filepath.Base(tailPath))
		}, w)
		fd.SetFilter(fynestorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg"}))
		fd.Show()
	})
	clearTail := widget.NewButton("Clear", func() {
		tailPath = ""
		tailLabel.SetText("(none)")
	})

	tailDuration := widget.NewEntry()
	tailDuration.SetText("3")

	outputName := widget.NewEntry()
	outputName.SetText("merged_output")

	containerSelect := widget.NewSelect([]string{
		string(models.ContainerMP4),
		string(models.ContainerMOV),
		string(models.ContainerMKV),
	}, nil)
	containerSelect.SetSelected(string(models.ContainerMP4))

	var startButton *widget.Button
	startButton = widget.NewButton("Start Merge", func() {
		opts, cleanup, err := buildOptions(clips, mergeSelect.Selected, useVoice.Checked,
			voicePath, voiceText.Text, mixSelect.Selected, personaSelect.Selected,
			tailPath, tailDuration.Text, outputName.Text, containerSelect.Selected)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}

		startButton.Disable()
		logger.Printf("[GUI] Merging %d clip(s)...", len(opts.Inputs))

		go func() {
			result, err := orch.Run(context.Background(), opts)
			cleanup()
			fyne.Do(func() {
				startButton.Enable()
				if err != nil {
					dialog.ShowError(err, w)
					return
				}
				dialog.ShowInformation("Merge complete", result.OutputPath, w)
			})
		}()
	})

	form := container.NewVBox(
		widget.NewLabelWithStyle("Clips", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		clipList,
		addClip,
		widget.NewSeparator(),
		container.NewGridWithColumns(2,
			container.NewBorder(nil, nil, widget.NewLabel("Resolution:"), nil, mergeSelect),
			container.NewBorder(nil, nil, widget.NewLabel("Container:"), nil, containerSelect),
		),
		container.NewBorder(nil, nil, widget.NewLabel("Output name:"), nil, outputName),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Narration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		useVoice,
		container.NewHBox(pickVoice, voiceLabel, clearVoice),
		voiceText,
		container.NewGridWithColumns(2,
			container.NewBorder(nil, nil, widget.NewLabel("Mix:"), nil, mixSelect),
			container.NewBorder(nil, nil, widget.NewLabel("Persona:"), nil, personaSelect),
		),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("End Card", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(pickTail, tailLabel, clearTail),
		container.NewBorder(nil, nil, widget.NewLabel("Seconds:"), nil, tailDuration),
		widget.NewSeparator(),
		startButton,
	)

	w.SetContent(container.NewBorder(nil, container.NewVScroll(logView), nil, nil,
		container.NewVScroll(form)))
	logView.SetMinRowsVisible(6)

	w.ShowAndRun()
}

// buildOptions validates the window state into pipeline options. The returned
// cleanup removes the temp file holding typed narration text and must run
// after the merge finishes.
func buildOptions(clips []*clipRow, mergeMode string, useVoice bool, voicePath, voiceText,
	mixMode, persona, tailPath, tailSecs, outputName, containerName string) (models.MergeOptions, func(), error) {

	cleanup := func() {}
	if len(clips) == 0 {
		return models.MergeOptions{}, cleanup, fmt.Errorf("add at least one clip")
	}

	opts := models.MergeOptions{
		UseVoice:  useVoice,
		VoicePath: voicePath,
		TailImage: tailPath,
	}

	for i, row := range clips {
		opts.Inputs = append(opts.Inputs, row.path)

		trim := 0.0
		if s := strings.TrimSpace(row.trim.Text); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v < 0 {
				return models.MergeOptions{}, cleanup, fmt.Errorf("clip %d: trim must be a non-negative number", i+1)
			}
			trim = v
		}
		opts.Trims = append(opts.Trims, trim)

		anchor, err := models.ParseTrimAnchor(row.anchor.Selected)
		if err != nil {
			return models.MergeOptions{}, cleanup, err
		}
		opts.TrimAnchors = append(opts.TrimAnchors, anchor)
	}

	var err error
	if opts.Merge, err = models.ParseMergeStrategy(mergeMode); err != nil {
		return models.MergeOptions{}, cleanup, err
	}
	if opts.Mix, err = models.ParseMixStrategy(mixMode); err != nil {
		return models.MergeOptions{}, cleanup, err
	}
	if opts.Persona, err = models.ParseVoicePersona(persona); err != nil {
		return models.MergeOptions{}, cleanup, err
	}
	if opts.Container, err = models.ParseContainer(containerName); err != nil {
		return models.MergeOptions{}, cleanup, err
	}

	if s := strings.TrimSpace(tailSecs); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return models.MergeOptions{}, cleanup, fmt.Errorf("tail seconds must be a non-negative number")
		}
		opts.TailDuration = v
	}

	name := strings.TrimSpace(outputName)
	if name == "" {
		name = "merged_output"
	}
	opts.OutputPath = filepath.Base(name)

	// Typed narration text rides through a temp file, same as the HTTP form.
	if useVoice && voicePath == "" && strings.TrimSpace(voiceText) != "" {
		f, err := os.CreateTemp("", "gui_voice_text_*.txt")
		if err != nil {
			return models.MergeOptions{}, cleanup, fmt.Errorf("failed to stage narration text: %w", err)
		}
		if _, err := f.WriteString(voiceText); err != nil {
			f.Close()
			os.Remove(f.Name())
			return models.MergeOptions{}, cleanup, fmt.Errorf("failed to stage narration text: %w", err)
		}
		f.Close()
		opts.VoiceTextFile = f.Name()
		cleanup = func() { os.Remove(f.Name()) }
	}

	return opts, cleanup, nil
}
