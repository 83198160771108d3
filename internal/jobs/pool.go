package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mgpai22/vidgen/internal/faults"
	"github.com/mgpai22/vidgen/internal/logging"
	"github.com/mgpai22/vidgen/internal/pipeline"
)

// Renderer runs one render request.
type Renderer interface {
	Render(ctx context.Context, req pipeline.Request, progress pipeline.Progress) (pipeline.Result, error)
}

// Loader turns a manifest path into a render request.
type Loader func(manifestPath string) (pipeline.Request, error)

// LoadManifest is the default Loader.
func LoadManifest(path string) (pipeline.Request, error) {
	m, err := pipeline.LoadManifest(path)
	if err != nil {
		return pipeline.Request{}, err
	}
	return m.Request(), nil
}

type PoolOptions struct {
	Workers      int
	LockDir      string
	PollInterval time.Duration
	Loader       Loader
}

// Pool claims queued jobs and renders them on a fixed number of workers.
type Pool struct {
	store    *Store
	renderer Renderer
	opts     PoolOptions
	logger   *logging.Logger
}

func NewPool(store *Store, renderer Renderer, opts PoolOptions, logger *logging.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Loader == nil {
		opts.Loader = LoadManifest
	}
	return &Pool{store: store, renderer: renderer, opts: opts, logger: logger.Or()}
}

// Submit queues the manifest at path. The manifest is parsed up front so a
// broken file is rejected before it reaches a worker.
func (p *Pool) Submit(ctx context.Context, manifestPath string) (*Job, error) {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	req, err := p.opts.Loader(abs)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "submit", abs, "load manifest", err)
	}
	if req.ProjectID == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, "submit", abs, "manifest has no project_id", nil)
	}
	job, err := p.store.Create(ctx, req.ProjectID, abs)
	if err != nil {
		return nil, err
	}
	p.logger.Infow("job queued", "job", job.ID, "project", job.ProjectID)
	return job, nil
}

// Run starts the workers and blocks until ctx is cancelled. Cancellation
// stops new claims; renders already started run to completion.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Infow("job pool started", "workers", p.opts.Workers, "poll_interval", p.opts.PollInterval)
	var wg sync.WaitGroup
	for i := range p.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, i)
		}()
	}
	wg.Wait()
	p.logger.Infow("job pool stopped")
	return nil
}

// Drain processes queued jobs on the calling goroutine until none remain.
// Jobs whose project is locked elsewhere are requeued once and left for
// Run. It returns the number of jobs that reached a terminal state.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	done := 0
	busy := make(map[string]bool)
	for ctx.Err() == nil {
		job, err := p.store.ClaimNext(ctx)
		if err != nil {
			return done, err
		}
		if job == nil {
			return done, nil
		}
		if p.process(ctx, job) {
			done++
			continue
		}
		if busy[job.ID] {
			// only locked projects are left
			return done, nil
		}
		busy[job.ID] = true
	}
	return done, ctx.Err()
}

// Recover requeues jobs stuck in running after a crash. A job whose
// project lock is still held belongs to a live worker and is left alone.
func (p *Pool) Recover(ctx context.Context) (int, error) {
	running, err := p.store.Running(ctx)
	if err != nil {
		return 0, err
	}
	if len(running) > 0 && p.opts.LockDir != "" {
		if err := os.MkdirAll(p.opts.LockDir, 0o755); err != nil {
			return 0, fmt.Errorf("create lock dir: %w", err)
		}
	}

	recovered := 0
	for _, job := range running {
		lock := flock.New(LockPath(p.opts.LockDir, job.ProjectID))
		ok, err := lock.TryLock()
		if err != nil || !ok {
			p.logger.Debugw("running job still locked, leaving it", "job", job.ID, "project", job.ProjectID, "error", err)
			continue
		}
		n, err := p.store.ResetStuck(ctx, job.ID)
		_ = lock.Unlock()
		if err != nil {
			return recovered, err
		}
		if n > 0 {
			p.logger.Warnw("requeued interrupted job", "job", job.ID, "project", job.ProjectID, "stage", job.Stage)
			recovered++
		}
	}
	return recovered, nil
}

func (p *Pool) work(ctx context.Context, worker int) {
	log := p.logger.With("worker", worker)
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.store.ClaimNext(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warnw("claim failed", "error", err)
		}
		if job != nil {
			if p.process(ctx, job) {
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.PollInterval):
		}
	}
}

// process renders a claimed job. It returns false when the project lock is
// held elsewhere and the job went back to the queue.
func (p *Pool) process(ctx context.Context, job *Job) bool {
	// the render itself must not be interrupted once claimed
	rctx := context.WithoutCancel(ctx)
	log := p.logger.With("job", job.ID, "project", job.ProjectID)

	if p.opts.LockDir != "" {
		if err := os.MkdirAll(p.opts.LockDir, 0o755); err != nil {
			log.Warnw("create lock dir failed", "error", err)
		}
	}
	lock := flock.New(LockPath(p.opts.LockDir, job.ProjectID))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		log.Infow("project locked elsewhere, requeueing", "error", err)
		if err := p.store.Release(rctx, job.ID); err != nil {
			log.Warnw("release failed", "error", err)
		}
		return false
	}
	defer func() { _ = lock.Unlock() }()

	req, err := p.opts.Loader(job.ManifestPath)
	if err != nil {
		p.fail(rctx, log, job, faults.Wrap(faults.ErrConfiguration, "load", job.ManifestPath, "load manifest", err))
		return true
	}
	req.JobID = job.ID

	log.Infow("render started", "manifest", job.ManifestPath)
	res, err := p.renderer.Render(rctx, req, func(stage string, percent int) {
		if err := p.store.UpdateProgress(rctx, job.ID, stage, percent); err != nil {
			log.Warnw("progress update failed", "stage", stage, "error", err)
		}
	})
	if err != nil {
		p.fail(rctx, log, job, err)
		return true
	}
	if err := p.store.Complete(rctx, job.ID, res.VideoPath, res.CaptionsPath); err != nil {
		log.Errorw("record completion failed", "error", err)
		return true
	}
	log.Infow("render succeeded", "video", res.VideoPath)
	return true
}

func (p *Pool) fail(ctx context.Context, log *logging.Logger, job *Job, cause error) {
	log.Errorw("render failed", "kind", faults.Kind(cause), "error", cause)
	if err := p.store.Fail(ctx, job.ID, cause.Error()); err != nil {
		log.Errorw("record failure failed", "error", err)
	}
}

var unsafeLockChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// LockPath is the per-project lock file under dir.
func LockPath(dir, projectID string) string {
	name := unsafeLockChars.ReplaceAllString(projectID, "_")
	if name == "" {
		name = "_"
	}
	return filepath.Join(dir, name+".lock")
}
