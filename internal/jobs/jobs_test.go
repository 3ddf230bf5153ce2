package jobs

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gendew/merge-video/internal/models"
	"github.com/gendew/merge-video/internal/pipeline"
)

type stubRunner struct {
	result  *pipeline.Result
	err     error
	gotOpts models.MergeOptions
	calls   int
}

func (s *stubRunner) Run(ctx context.Context, opts models.MergeOptions) (*pipeline.Result, error) {
	s.calls++
	s.gotOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// manualScheduler records dispatches without running anything, so tests
// drive RunJob synchronously.
type manualScheduler struct {
	ids []string
}

func (s *manualScheduler) Dispatch(jobID string) {
	s.ids = append(s.ids, jobID)
}

type mirrorUpload struct {
	bucket, key, localPath, contentType string
}

type fakeMirror struct {
	mu        sync.Mutex
	uploads   []mirrorUpload
	uploadErr error
	signErr   error
	signCalls int
	signTTL   int
}

func (f *fakeMirror) UploadFile(ctx context.Context, bucket, key, localPath, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, mirrorUpload{bucket, key, localPath, contentType})
	return nil
}

func (f *fakeMirror) SignedURL(ctx context.Context, bucket, key string, expiresIn int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signCalls++
	f.signTTL = expiresIn
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://cdn.example.com/" + key, nil
}

func newTestManager(runner Runner, mirror Mirror) (*Manager, *manualScheduler) {
	m := NewManager(NewRegistry(), runner, mirror, Config{
		UploadBucket:  "merge-uploads",
		OutputBucket:  "merge-output",
		URLExpireSecs: 86400,
	}, log.New(io.Discard, "", 0))
	sched := &manualScheduler{}
	m.SetScheduler(sched)
	return m, sched
}

func makeTempUpload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("upload"), 0644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return path
}

func TestSubmitDispatchesPendingJob(t *testing.T) {
	runner := &stubRunner{result: &pipeline.Result{OutputPath: "/out/final.mp4"}}
	m, sched := newTestManager(runner, nil)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{"a.mp4"}}, nil)
	if job.ID == "" {
		t.Fatal("Submit() returned empty job ID")
	}
	if job.Status != models.JobPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if len(sched.ids) != 1 || sched.ids[0] != job.ID {
		t.Errorf("dispatched = %v, want [%s]", sched.ids, job.ID)
	}
	if runner.calls != 0 {
		t.Errorf("runner ran %d times before dispatch, want 0", runner.calls)
	}
}

func TestRunJobSuccess(t *testing.T) {
	upload := makeTempUpload(t, "clip.mp4")
	runner := &stubRunner{result: &pipeline.Result{
		OutputPath: "/out/final.mp4",
		Duration:   8,
		Warnings:   []string{"trim of 10.000s exceeds clip"},
	}}
	m, _ := newTestManager(runner, nil)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{upload}}, []string{upload})
	m.RunJob(job.ID)

	status, err := m.Status(job.ID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status.Status != models.JobDone {
		t.Errorf("status = %s, want done", status.Status)
	}
	if status.OutputPath != "/out/final.mp4" {
		t.Errorf("output path = %q", status.OutputPath)
	}
	if len(status.Warnings) != 1 {
		t.Errorf("warnings = %v, want the pipeline warning", status.Warnings)
	}
	if runner.calls != 1 {
		t.Errorf("runner ran %d times, want 1", runner.calls)
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Errorf("saved upload %s still exists after the job finished", upload)
	}
}

func TestRunJobFailure(t *testing.T) {
	upload := makeTempUpload(t, "clip.mp4")
	runner := &stubRunner{err: errors.New("render exploded")}
	m, _ := newTestManager(runner, nil)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{upload}}, []string{upload})
	m.RunJob(job.ID)

	status, err := m.Status(job.ID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status.Status != models.JobError {
		t.Errorf("status = %s, want error", status.Status)
	}
	if status.Error != "render exploded" {
		t.Errorf("error = %q", status.Error)
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Errorf("saved upload %s still exists after a failed job", upload)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	m, _ := newTestManager(&stubRunner{}, nil)
	if _, err := m.Status("nope"); !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("Status() error = %v, want ErrJobNotFound", err)
	}
}

func TestResultLifecycle(t *testing.T) {
	runner := &stubRunner{result: &pipeline.Result{OutputPath: "/out/final.mp4"}}
	m, _ := newTestManager(runner, nil)

	if _, err := m.Result("nope"); !errors.Is(err, models.ErrJobNotFound) {
		t.Fatalf("Result(unknown) error = %v, want ErrJobNotFound", err)
	}

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{"a.mp4"}}, nil)
	if _, err := m.Result(job.ID); !errors.Is(err, models.ErrJobNotReady) {
		t.Fatalf("Result(pending) error = %v, want ErrJobNotReady", err)
	}

	m.RunJob(job.ID)
	got, err := m.Result(job.ID)
	if err != nil {
		t.Fatalf("Result(done) error: %v", err)
	}
	if got.OutputPath != "/out/final.mp4" {
		t.Errorf("output path = %q", got.OutputPath)
	}
}

func TestResultFailedJobNotReady(t *testing.T) {
	runner := &stubRunner{err: errors.New("boom")}
	m, _ := newTestManager(runner, nil)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{"a.mp4"}}, nil)
	m.RunJob(job.ID)

	_, err := m.Result(job.ID)
	if !errors.Is(err, models.ErrJobNotReady) {
		t.Fatalf("Result(failed) error = %v, want ErrJobNotReady", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want the job failure message included", err)
	}
}

func TestSubmitMirrorsUploads(t *testing.T) {
	upload := makeTempUpload(t, "clip.mp4")
	mirror := &fakeMirror{}
	m, _ := newTestManager(&stubRunner{result: &pipeline.Result{}}, mirror)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{upload}}, []string{upload})

	if len(mirror.uploads) != 1 {
		t.Fatalf("mirrored %d files, want 1", len(mirror.uploads))
	}
	got := mirror.uploads[0]
	if got.bucket != "merge-uploads" {
		t.Errorf("bucket = %q", got.bucket)
	}
	wantKey := "uploads/" + job.ID + "/clip.mp4"
	if got.key != wantKey {
		t.Errorf("key = %q, want %q", got.key, wantKey)
	}
	if got.contentType != "video/mp4" {
		t.Errorf("content type = %q", got.contentType)
	}
}

func TestSubmitMirrorFailureIsRecoverable(t *testing.T) {
	upload := makeTempUpload(t, "clip.mp4")
	mirror := &fakeMirror{uploadErr: errors.New("storage down")}
	m, sched := newTestManager(&stubRunner{result: &pipeline.Result{}}, mirror)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{upload}}, []string{upload})

	if len(sched.ids) != 1 {
		t.Fatalf("job was not dispatched after a mirror failure")
	}
	status, err := m.Status(job.ID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(status.Warnings) != 1 || !strings.Contains(status.Warnings[0], "upload mirror failed") {
		t.Errorf("warnings = %v, want a mirror warning", status.Warnings)
	}
}

func TestRunJobMirrorsOutput(t *testing.T) {
	out := makeTempUpload(t, "final.mp4")
	mirror := &fakeMirror{}
	runner := &stubRunner{result: &pipeline.Result{OutputPath: out}}
	m, _ := newTestManager(runner, mirror)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{"a.mp4"}}, nil)
	m.RunJob(job.ID)

	if len(mirror.uploads) != 1 {
		t.Fatalf("mirrored %d files, want the output", len(mirror.uploads))
	}
	wantKey := "output/" + job.ID + "/final.mp4"
	if mirror.uploads[0].key != wantKey {
		t.Errorf("key = %q, want %q", mirror.uploads[0].key, wantKey)
	}
	if mirror.signTTL != 86400 {
		t.Errorf("signed URL TTL = %d, want 86400", mirror.signTTL)
	}

	status, _ := m.Status(job.ID)
	if status.OutputURL != "https://cdn.example.com/"+wantKey {
		t.Errorf("output URL = %q", status.OutputURL)
	}
}

func TestRunJobSignFailureKeepsJobDone(t *testing.T) {
	out := makeTempUpload(t, "final.mp4")
	mirror := &fakeMirror{signErr: errors.New("sign down")}
	runner := &stubRunner{result: &pipeline.Result{OutputPath: out}}
	m, _ := newTestManager(runner, mirror)

	job := m.Submit(context.Background(), models.MergeOptions{Inputs: []string{"a.mp4"}}, nil)
	m.RunJob(job.ID)

	status, _ := m.Status(job.ID)
	if status.Status != models.JobDone {
		t.Errorf("status = %s, want done despite the sign failure", status.Status)
	}
	if status.OutputURL != "" {
		t.Errorf("output URL = %q, want empty", status.OutputURL)
	}
	if len(status.Warnings) != 1 {
		t.Errorf("warnings = %v, want the sign warning", status.Warnings)
	}
}

func TestSpawnSchedulerRunsJob(t *testing.T) {
	done := make(chan string, 1)
	s := NewSpawnScheduler(func(id string) { done <- id })
	s.Dispatch("job-1")
	if got := <-done; got != "job-1" {
		t.Errorf("ran %q, want job-1", got)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Insert(&models.Job{ID: "j1", Status: models.JobPending, Warnings: []string{"w"}})

	copy1, ok := r.Get("j1")
	if !ok {
		t.Fatal("Get() missed an inserted job")
	}
	copy1.Status = models.JobDone
	copy1.Warnings[0] = "mutated"
	copy1.Warnings = append(copy1.Warnings, "extra")

	fresh, _ := r.Get("j1")
	if fresh.Status != models.JobPending {
		t.Errorf("stored status = %s, want pending", fresh.Status)
	}
	if len(fresh.Warnings) != 1 || fresh.Warnings[0] != "w" {
		t.Errorf("stored warnings = %v, want [w]", fresh.Warnings)
	}
}
