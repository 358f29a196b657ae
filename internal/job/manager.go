// Package job supervises analysis runs: one job per repository root,
// with bounded worker pools, per-file and per-repository timeouts, and
// cooperative cancellation between files.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vosbek/codeatlas/internal/cache"
	"github.com/vosbek/codeatlas/internal/config"
	"github.com/vosbek/codeatlas/internal/diag"
	"github.com/vosbek/codeatlas/internal/discover"
	"github.com/vosbek/codeatlas/internal/framework"
	"github.com/vosbek/codeatlas/internal/graph"
	"github.com/vosbek/codeatlas/internal/jparse"
	"github.com/vosbek/codeatlas/internal/rules"
	"github.com/vosbek/codeatlas/internal/store"
	"github.com/vosbek/codeatlas/internal/vcs"
	"github.com/vosbek/codeatlas/internal/walker"
)

// State is one step of the job lifecycle.
type State string

const (
	StateQueued         State = "QUEUED"
	StateDiscovering    State = "DISCOVERING"
	StateParsing        State = "PARSING"
	StateParsingPartial State = "PARSING_PARTIAL"
	StateEnriching      State = "ENRICHING"
	StateGraphEmitting  State = "GRAPH_EMITTING"
	StateCompleted      State = "COMPLETED"
	StateCancelled      State = "CANCELLED"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Status is a point-in-time snapshot of a job.
type Status struct {
	ID             string `json:"id"`
	Root           string `json:"root"`
	State          State  `json:"state"`
	FilesTotal     int    `json:"files_total"`
	FilesProcessed int    `json:"files_processed"`
	Diagnostics    int    `json:"diagnostics"`
	SnapshotID     string `json:"snapshot_id,omitempty"`
	Err            string `json:"error,omitempty"`
}

// Manager owns the repository-level worker pool and all submitted jobs.
type Manager struct {
	cfg   *config.Config
	store *store.Store
	log   *slog.Logger
	cache *cache.ParseCache

	// repoSem caps concurrently running repositories; queued jobs block
	// here until a slot frees.
	repoSem *semaphore.Weighted

	mu   sync.Mutex
	jobs map[string]*analysisJob

	// scheduleHook, when set, runs synchronously after the n-th file has
	// been handed to the pool. Tests use it to pin cancellation and
	// timeout to an exact point in the schedule.
	scheduleHook func(scheduled int)
}

type analysisJob struct {
	id   string
	root string

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      State
	trace      []State
	filesTotal int
	filesDone  int
	diagCount  int
	snapshotID string
	batch      *graph.Batch
	err        error
}

// NewManager wires the pipeline around a config and an open store.
func NewManager(cfg *config.Config, st *store.Store, log *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pc, err := cache.New(cfg.ParseCacheSize)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		store:   st,
		log:     log,
		cache:   pc,
		repoSem: semaphore.NewWeighted(int64(cfg.RepoWorkers)),
		jobs:    make(map[string]*analysisJob),
	}, nil
}

// Submit queues an analysis job for the repository rooted at root and
// returns immediately. Root problems surface as a FAILED job, not here.
func (m *Manager) Submit(root string) string {
	ctx, cancel := context.WithCancel(context.Background())
	j := &analysisJob{
		id:     uuid.NewString(),
		root:   root,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateQueued,
		trace:  []State{StateQueued},
	}
	m.mu.Lock()
	m.jobs[j.id] = j
	m.mu.Unlock()

	m.log.Info("job.submitted", "job", j.id, "root", root)
	go m.run(ctx, j)
	return j.id
}

// Status returns the current snapshot of a job.
func (m *Manager) Status(id string) (Status, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return j.status(), nil
}

// States returns the transition trace of a job in order.
func (m *Manager) States(id string) ([]State, error) {
	j, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]State, len(j.trace))
	copy(out, j.trace)
	return out, nil
}

// Cancel requests cooperative cancellation. A job canceled mid-parse
// still finishes its in-flight files and emits a graph for them.
func (m *Manager) Cancel(id string) error {
	j, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.log.Info("job.cancel.requested", "job", id)
	j.cancel()
	return nil
}

// Result returns the emitted batch of a terminal job. Partial runs
// (cancellation, repository timeout) still have one; a job failed before
// emission does not.
func (m *Manager) Result(id string) (*graph.Batch, error) {
	j, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-j.done:
	default:
		return nil, fmt.Errorf("job: %s still running", id)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.batch == nil {
		return nil, fmt.Errorf("job: %s produced no batch", id)
	}
	return j.batch, nil
}

// Wait blocks until the job reaches a terminal state or ctx expires.
func (m *Manager) Wait(ctx context.Context, id string) (Status, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	select {
	case <-j.done:
		return j.status(), nil
	case <-ctx.Done():
		return j.status(), ctx.Err()
	}
}

func (m *Manager) lookup(id string) (*analysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job: unknown id %q", id)
	}
	return j, nil
}

func (m *Manager) run(jobCtx context.Context, j *analysisJob) {
	defer close(j.done)
	defer j.cancel()

	if err := m.repoSem.Acquire(jobCtx, 1); err != nil {
		m.fail(j, fmt.Errorf("canceled before start: %w", err))
		return
	}
	defer m.repoSem.Release(1)

	runCtx, cancelRun := context.WithTimeout(jobCtx, m.cfg.RepoTimeout)
	defer cancelRun()

	if err := m.execute(runCtx, jobCtx, j); err != nil {
		m.fail(j, err)
		return
	}
	st := j.status()
	m.log.Info("job.done",
		"job", j.id,
		"state", string(st.State),
		"snapshot", st.SnapshotID,
		"files", st.FilesProcessed,
		"diagnostics", st.Diagnostics)
}

func (m *Manager) fail(j *analysisJob, err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	m.setState(j, StateFailed)
	m.log.Warn("job.failed", "job", j.id, "err", err)
}

func (m *Manager) setState(j *analysisJob, s State) {
	j.mu.Lock()
	j.state = s
	j.trace = append(j.trace, s)
	j.mu.Unlock()
	m.log.Debug("job.state", "job", j.id, "state", string(s))
}

type fileResult struct {
	tree  *jparse.DeclTree
	cands []framework.Artifact
	rules []rules.Rule
	diags []diag.Diagnostic
}

func (m *Manager) execute(runCtx, jobCtx context.Context, j *analysisJob) error {
	m.setState(j, StateDiscovering)
	repo, err := discover.Discover(runCtx, j.root, m.cfg)
	if err != nil {
		return err
	}
	m.log.Info("discover.done", "job", j.id, "modules", len(repo.Modules))

	w, err := walker.New(j.root, m.cfg.MaxFileSize)
	if err != nil {
		return err
	}
	files, walkDiags := walker.Collect(w)

	var javaFiles, companions []walker.SourceFile
	for _, f := range files {
		if f.Kind == walker.KindJava {
			javaFiles = append(javaFiles, f)
		} else {
			companions = append(companions, f)
		}
	}

	j.mu.Lock()
	j.filesTotal = len(javaFiles)
	j.mu.Unlock()

	m.setState(j, StateParsing)
	results := make([]fileResult, len(javaFiles))
	completed := make([]bool, len(javaFiles))

	var g errgroup.Group
	g.SetLimit(m.cfg.FileWorkers)
	scheduled := 0
	for i, f := range javaFiles {
		// Cancellation and the repository deadline are honored between
		// files only; whatever is already in flight runs to completion.
		if runCtx.Err() != nil {
			break
		}
		i, f := i, f
		g.Go(func() error {
			results[i] = m.processFile(f)
			completed[i] = true
			j.mu.Lock()
			j.filesDone++
			j.mu.Unlock()
			return nil
		})
		scheduled++
		if m.scheduleHook != nil {
			m.scheduleHook(scheduled)
		}
	}
	g.Wait()

	canceled := jobCtx.Err() != nil
	timedOut := !canceled && runCtx.Err() != nil
	failedFiles := 0
	for i := range javaFiles {
		if completed[i] && (results[i].tree == nil || results[i].tree.Outcome == jparse.OutcomeFailure) {
			failedFiles++
		}
	}
	m.log.Info("parse.done",
		"job", j.id,
		"scheduled", scheduled,
		"total", len(javaFiles),
		"failed", failedFiles,
		"canceled", canceled,
		"timed_out", timedOut)

	// Any shortfall against the full file set parks the job in
	// PARSING_PARTIAL before enrichment: per-file failures, cancellation,
	// or the repository deadline cutting the schedule short.
	if canceled || timedOut || failedFiles > 0 {
		m.setState(j, StateParsingPartial)
	}
	var extraDiags []diag.Diagnostic
	if canceled {
		extraDiags = append(extraDiags, diag.Warnf(diag.CategoryCancellation, "",
			"canceled after %d of %d files; emitting partial graph", scheduled, len(javaFiles)))
	}
	if timedOut {
		extraDiags = append(extraDiags, diag.Errorf(diag.CategoryCancellation, "",
			"repository timeout after %s; %d of %d files retained",
			m.cfg.RepoTimeout, scheduled, len(javaFiles)))
	}

	m.setState(j, StateEnriching)
	cs := &framework.ConfigSet{}
	var mergeDiags []diag.Diagnostic
	for _, f := range companions {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			mergeDiags = append(mergeDiags, diag.Warnf(diag.CategoryWalk, f.RelPath, "read: %v", err))
			continue
		}
		mergeDiags = append(mergeDiags, cs.Add(f, data)...)
	}

	knownTypes := map[string]bool{}
	var cands []framework.Artifact
	var allRules []rules.Rule
	for i := range javaFiles {
		if !completed[i] || results[i].tree == nil {
			continue
		}
		for _, t := range results[i].tree.Types {
			knownTypes[t.QualifiedName] = true
			knownTypes[t.Name] = true
		}
		cands = append(cands, results[i].cands...)
		allRules = append(allRules, results[i].rules...)
	}
	artifacts, matchDiags := framework.CrossMatch(cands, knownTypes, cs)

	m.setState(j, StateGraphEmitting)
	b := graph.NewBuilder()
	spans := make([]moduleSpan, 0, len(repo.Modules))
	for _, mod := range repo.Modules {
		spans = append(spans, moduleSpan{rel: mod.RelPath, id: b.AddModule(mod)})
	}
	sort.Slice(spans, func(x, y int) bool { return len(spans[x].rel) > len(spans[y].rel) })

	for i, f := range javaFiles {
		if !completed[i] {
			continue
		}
		b.AddFile(moduleFor(spans, f.RelPath), f.RelPath, results[i].tree)
		b.AddDiagnostics(results[i].diags...)
	}
	for _, a := range artifacts {
		b.AddArtifact(a)
	}
	for _, r := range allRules {
		b.AddRule(r)
	}
	b.AddDiagnostics(repo.Diagnostics...)
	b.AddDiagnostics(walkDiags...)
	b.AddDiagnostics(mergeDiags...)
	b.AddDiagnostics(matchDiags...)
	b.AddDiagnostics(extraDiags...)

	snapshotID := uuid.NewString()
	batch := b.Finish(snapshotID)
	revision := vcs.RevisionMarker(j.root)
	if err := m.store.SaveBatch(j.root, revision, batch); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}

	j.mu.Lock()
	j.snapshotID = snapshotID
	j.diagCount = len(batch.Diagnostics)
	j.batch = batch
	j.mu.Unlock()
	m.log.Info("graph.saved",
		"job", j.id,
		"snapshot", snapshotID,
		"entities", len(batch.Entities),
		"relationships", len(batch.Relationships))

	if timedOut {
		return fmt.Errorf("repository timeout after %s (partial snapshot %s retained)",
			m.cfg.RepoTimeout, snapshotID)
	}
	if canceled {
		// Partial graph persisted, but the job did not run to completion.
		m.setState(j, StateCancelled)
		return nil
	}
	m.setState(j, StateCompleted)
	return nil
}

// processFile parses and enriches a single source file. It takes no
// context on purpose: parsing is pure CPU work bounded by the per-file
// timer, and an in-flight file is never interrupted mid-parse.
func (m *Manager) processFile(f walker.SourceFile) fileResult {
	var res fileResult
	data, err := os.ReadFile(f.Path)
	if err != nil {
		res.diags = append(res.diags, diag.Errorf(diag.CategoryParse, f.RelPath, "read: %v", err))
		return res
	}

	type parsed struct {
		tree  *jparse.DeclTree
		diags []diag.Diagnostic
	}
	ch := make(chan parsed, 1)
	start := time.Now()
	go func() {
		tree, pd := m.cache.Get(f.RelPath, data)
		ch <- parsed{tree, pd}
	}()
	timer := time.NewTimer(m.cfg.FileTimeout)
	defer timer.Stop()
	select {
	case p := <-ch:
		res.tree = p.tree
		res.diags = append(res.diags, p.diags...)
	case <-timer.C:
		res.diags = append(res.diags, diag.Errorf(diag.CategoryParse, f.RelPath,
			"parse abandoned after %s", m.cfg.FileTimeout))
		m.log.Warn("parse.file.timeout", "path", f.RelPath, "elapsed", time.Since(start))
		return res
	}
	if res.tree == nil || res.tree.Outcome == jparse.OutcomeFailure {
		return res
	}

	res.cands = framework.Candidates(f.RelPath, res.tree)
	for _, t := range res.tree.Types {
		for _, meth := range t.Methods {
			res.rules = append(res.rules, rules.Extract(f.RelPath, t, meth)...)
		}
	}
	return res
}

type moduleSpan struct {
	rel string
	id  string
}

// moduleFor maps a file to the deepest module whose directory contains
// it; spans must be sorted longest-rel-first so the root module ("") is
// the fallback.
func moduleFor(spans []moduleSpan, rel string) string {
	for _, s := range spans {
		if s.rel == "" || rel == s.rel || strings.HasPrefix(rel, s.rel+"/") {
			return s.id
		}
	}
	return ""
}

func (j *analysisJob) status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := Status{
		ID:             j.id,
		Root:           j.root,
		State:          j.state,
		FilesTotal:     j.filesTotal,
		FilesProcessed: j.filesDone,
		Diagnostics:    j.diagCount,
		SnapshotID:     j.snapshotID,
	}
	if j.err != nil {
		st.Err = j.err.Error()
	}
	return st
}
