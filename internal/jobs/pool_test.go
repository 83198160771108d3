package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/pipeline"
)

type fakeRenderer struct {
	mu       sync.Mutex
	requests []pipeline.Request
	err      error
	// onStart runs before progress is reported
	onStart func()
	ctxErrs []error
}

func (r *fakeRenderer) Render(ctx context.Context, req pipeline.Request, progress pipeline.Progress) (pipeline.Result, error) {
	if r.onStart != nil {
		r.onStart()
	}
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()

	progress("validate", 5)
	progress("compose", 55)
	if r.err != nil {
		return pipeline.Result{}, r.err
	}
	progress("publish", 100)
	return pipeline.Result{
		VideoPath:    "/out/" + req.ProjectID + ".mp4",
		CaptionsPath: "/work/" + req.JobID + "/subtitle.ass",
	}, nil
}

func staticLoader(projects map[string]string) Loader {
	return func(path string) (pipeline.Request, error) {
		id, ok := projects[filepath.Base(path)]
		if !ok {
			return pipeline.Request{}, errors.New("manifest not found")
		}
		return pipeline.Request{ProjectID: id, TemplateID: "t0"}, nil
	}
}

func newTestPool(t *testing.T, r Renderer) (*Pool, *Store, string) {
	t.Helper()
	store := openTestStore(t)
	lockDir := filepath.Join(t.TempDir(), "locks")
	pool := NewPool(store, r, PoolOptions{
		Workers:      2,
		LockDir:      lockDir,
		PollInterval: 10 * time.Millisecond,
		Loader:       staticLoader(map[string]string{"a.toml": "alpha", "b.toml": "beta", "blank.toml": ""}),
	}, nil)
	return pool, store, lockDir
}

func TestPoolSubmit(t *testing.T) {
	pool, _, _ := newTestPool(t, &fakeRenderer{})
	ctx := context.Background()

	job, err := pool.Submit(ctx, "a.toml")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !filepath.IsAbs(job.ManifestPath) {
		t.Errorf("ManifestPath = %q, want absolute", job.ManifestPath)
	}
	if _, err := pool.Submit(ctx, "a.toml"); !errors.Is(err, ErrProjectBusy) {
		t.Errorf("duplicate Submit() error = %v, want ErrProjectBusy", err)
	}
	if _, err := pool.Submit(ctx, "missing.toml"); !errors.Is(err, faults.ErrConfiguration) {
		t.Errorf("Submit(missing) error = %v, want configuration error", err)
	}
	if _, err := pool.Submit(ctx, "blank.toml"); !errors.Is(err, faults.ErrConfiguration) {
		t.Errorf("Submit(no project) error = %v, want configuration error", err)
	}
}

func TestPoolDrainRecordsOutcome(t *testing.T) {
	renderer := &fakeRenderer{}
	pool, store, _ := newTestPool(t, renderer)
	ctx := context.Background()

	job, err := pool.Submit(ctx, "a.toml")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	n, err := pool.Drain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Drain() = %d, %v; want 1, nil", n, err)
	}

	got, _ := store.Get(ctx, job.ID)
	if got.Status != StatusSucceeded || got.Stage != "publish" || got.Progress != 100 {
		t.Errorf("job = %s/%s/%d", got.Status, got.Stage, got.Progress)
	}
	if got.VideoPath != "/out/alpha.mp4" {
		t.Errorf("VideoPath = %q", got.VideoPath)
	}
	if len(renderer.requests) != 1 || renderer.requests[0].JobID != job.ID {
		t.Errorf("renderer requests = %+v, want JobID %s", renderer.requests, job.ID)
	}
}

func TestPoolRecordsFailure(t *testing.T) {
	renderer := &fakeRenderer{err: faults.MissingAsset("s1", "narration text is empty")}
	pool, store, _ := newTestPool(t, renderer)
	ctx := context.Background()

	job, _ := pool.Submit(ctx, "a.toml")
	if _, err := pool.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "s1") || got.Stage != "compose" {
		t.Errorf("failed job = error %q stage %q", got.Error, got.Stage)
	}
}

func TestPoolRequeuesLockedProject(t *testing.T) {
	pool, store, lockDir := newTestPool(t, &fakeRenderer{})
	ctx := context.Background()

	job, _ := pool.Submit(ctx, "a.toml")

	held := flock.New(LockPath(lockDir, "alpha"))
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}

	if n, err := pool.Drain(ctx); err != nil || n != 0 {
		t.Fatalf("Drain() with lock held = %d, %v; want 0, nil", n, err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != StatusQueued {
		t.Errorf("status = %s, want queued", got.Status)
	}

	_ = held.Unlock()
	if n, err := pool.Drain(ctx); err != nil || n != 1 {
		t.Fatalf("Drain() after unlock = %d, %v; want 1, nil", n, err)
	}
}

func TestPoolDrainSkipsLockedProject(t *testing.T) {
	r := &fakeRenderer{}
	pool, store, lockDir := newTestPool(t, r)
	ctx := context.Background()

	alpha, _ := pool.Submit(ctx, "a.toml")
	beta, _ := pool.Submit(ctx, "b.toml")

	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(LockPath(lockDir, "alpha"))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	if n, err := pool.Drain(ctx); err != nil || n != 1 {
		t.Fatalf("Drain() = %d, %v; want 1, nil", n, err)
	}
	if got, _ := store.Get(ctx, alpha.ID); got.Status != StatusQueued {
		t.Errorf("alpha status = %s, want queued", got.Status)
	}
	if got, _ := store.Get(ctx, beta.ID); got.Status != StatusSucceeded {
		t.Errorf("beta status = %s, want succeeded", got.Status)
	}
}

func TestPoolRecoverRequeuesInterruptedJobs(t *testing.T) {
	pool, store, lockDir := newTestPool(t, &fakeRenderer{})
	ctx := context.Background()

	alpha, _ := pool.Submit(ctx, "a.toml")
	beta, _ := pool.Submit(ctx, "b.toml")
	for range 2 {
		if _, err := store.ClaimNext(ctx); err != nil {
			t.Fatalf("ClaimNext() error = %v", err)
		}
	}

	// beta's worker is still alive and holds its lock
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held := flock.New(LockPath(lockDir, "beta"))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	n, err := pool.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Recover() = %d, %v; want 1, nil", n, err)
	}
	if got, _ := store.Get(ctx, alpha.ID); got.Status != StatusQueued {
		t.Errorf("alpha status = %s, want queued", got.Status)
	}
	if got, _ := store.Get(ctx, beta.ID); got.Status != StatusRunning {
		t.Errorf("beta status = %s, want running", got.Status)
	}

	if n, err := pool.Drain(ctx); err != nil || n != 1 {
		t.Fatalf("Drain() after recover = %d, %v; want 1, nil", n, err)
	}
	if got, _ := store.Get(ctx, alpha.ID); got.Status != StatusSucceeded {
		t.Errorf("alpha status after drain = %s, want succeeded", got.Status)
	}
}

func TestPoolRenderIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderer := &fakeRenderer{onStart: cancel}
	pool, store, _ := newTestPool(t, renderer)

	job, _ := pool.Submit(ctx, "a.toml")
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext() = %v, %v", claimed, err)
	}
	pool.process(ctx, claimed)

	if renderer.ctxErrs[0] != nil {
		t.Errorf("render context error = %v, want nil after caller cancelled", renderer.ctxErrs[0])
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", got.Status)
	}
}

func TestPoolRunStopsOnCancel(t *testing.T) {
	pool, store, _ := newTestPool(t, &fakeRenderer{})
	ctx, cancel := context.WithCancel(context.Background())

	a, _ := pool.Submit(ctx, "a.toml")
	b, _ := pool.Submit(ctx, "b.toml")

	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ja, _ := store.Get(context.Background(), a.ID)
		jb, _ := store.Get(context.Background(), b.ID)
		if ja.Status.IsTerminal() && jb.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	for _, id := range []string{a.ID, b.ID} {
		got, _ := store.Get(context.Background(), id)
		if got.Status != StatusSucceeded {
			t.Errorf("job %s status = %s, want succeeded", id, got.Status)
		}
	}
}

func TestLockPath(t *testing.T) {
	tests := []struct {
		project string
		want    string
	}{
		{"alpha", "alpha.lock"},
		{"my project/1", "my_project_1.lock"},
		{"", "_.lock"},
	}
	for _, tt := range tests {
		t.Run(tt.project, func(t *testing.T) {
			if got := filepath.Base(LockPath("/locks", tt.project)); got != tt.want {
				t.Errorf("LockPath(%q) = %q, want %q", tt.project, got, tt.want)
			}
		})
	}
}
