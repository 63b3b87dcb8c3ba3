// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/bentham/internal/adapter"
	"github.com/kadirpekel/bentham/internal/bherrors"
	"github.com/kadirpekel/bentham/internal/checkpoint"
	"github.com/kadirpekel/bentham/internal/core"
	"github.com/kadirpekel/bentham/internal/credential"
	"github.com/kadirpekel/bentham/internal/events"
	"github.com/kadirpekel/bentham/internal/metrics"
	"github.com/kadirpekel/bentham/internal/session"
)

// ErrStudyNotFound is returned by control APIs addressing an unknown study.
var ErrStudyNotFound = fmt.Errorf("orchestrator: study not found")

// Orchestrator expands studies into cells, dispatches them across a bounded
// worker pool per study, and reconciles outcomes against the checkpoint,
// credential, and session subsystems.
type Orchestrator struct {
	cfg            Config
	adapters       adapter.Registry
	credentials    *credential.Manager
	sessions       *session.Manager
	engine         *checkpoint.Engine
	checkpointCfg  checkpoint.ManagerConfig
	bus            *events.Bus
	troubleshooter *bherrors.Troubleshooter
	metrics        *metrics.Metrics

	mu      sync.Mutex
	studies map[string]*studyState

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds an Orchestrator. cfg is defaulted and validated by the caller.
func New(
	cfg Config,
	adapters adapter.Registry,
	credentials *credential.Manager,
	sessions *session.Manager,
	engine *checkpoint.Engine,
	checkpointCfg checkpoint.ManagerConfig,
	bus *events.Bus,
) *Orchestrator {
	return &Orchestrator{
		cfg:            cfg,
		adapters:       adapters,
		credentials:    credentials,
		sessions:       sessions,
		engine:         engine,
		checkpointCfg:  checkpointCfg,
		bus:            bus,
		troubleshooter: bherrors.NewTroubleshooter(),
		studies:        make(map[string]*studyState),
		rng:            rand.New(rand.NewSource(1)),
	}
}

type studyState struct {
	study   *core.Study
	queue   *Queue
	manager *checkpoint.Manager

	mu     sync.Mutex
	status core.StudyStatus
	paused bool

	// sessionCache holds the one session per surface reserved for the
	// whole study's lifetime under core.IsolationPerStudy. Unused by
	// studies configured with any other SessionIsolation.
	sessionCache map[string]*session.Session

	pending  int64
	doneCh   chan struct{}
	doneOnce sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *studyState) markDoneIfDrained() {
	if atomic.LoadInt64(&s.pending) == 0 {
		s.doneOnce.Do(func() { close(s.doneCh) })
	}
}

// SubmitStudy expands study into cells, freezes their dispatch order, and
// starts its worker pool. Resubmitting a study whose checkpoint already
// exists on disk resumes it from the recorded progress instead of starting
// over, per the crash-resilience contract (spec-level guarantee: a study id
// is a durable handle across process restarts).
func (o *Orchestrator) SubmitStudy(ctx context.Context, study *core.Study) (StudyHandle, error) {
	if study == nil || study.ID == "" {
		return StudyHandle{}, fmt.Errorf("orchestrator: study must have an id")
	}
	if study.CellCount() == 0 {
		return StudyHandle{}, fmt.Errorf("orchestrator: study %s expands to zero cells", study.ID)
	}
	if study.MaxRetries < 0 {
		return StudyHandle{}, fmt.Errorf("orchestrator: study %s has negative max_retries", study.ID)
	}

	o.mu.Lock()
	if _, exists := o.studies[study.ID]; exists {
		o.mu.Unlock()
		return StudyHandle{}, fmt.Errorf("orchestrator: study %s is already running", study.ID)
	}
	o.mu.Unlock()

	cp, err := o.engine.Load(study.ID)
	if err != nil {
		return StudyHandle{}, fmt.Errorf("orchestrator: load checkpoint for %s: %w", study.ID, err)
	}

	queue := NewQueue()
	if cp == nil {
		cp = o.engine.Create(study.ID, study.Name, study.Surfaces, study.Locations, len(study.Queries), expandCells(study))
		for i, encoded := range cp.ExecutionQueue {
			key, decodeErr := core.DecodeCellKey(encoded, study.Locations)
			if decodeErr != nil {
				return StudyHandle{}, fmt.Errorf("orchestrator: %w", decodeErr)
			}
			queue.Push(&Job{
				StudyID:      study.ID,
				TenantID:     study.TenantID,
				Cell:         key,
				Attempt:      1,
				Priority:     study.Priority,
				Query:        study.Queries[key.QueryIndex],
				insertionSeq: int64(i + 1),
			})
		}
	} else {
		for _, encoded := range checkpoint.RemainingCells(cp) {
			key, decodeErr := core.DecodeCellKey(encoded, study.Locations)
			if decodeErr != nil {
				return StudyHandle{}, fmt.Errorf("orchestrator: %w", decodeErr)
			}
			attempt := 1
			if rs, ok := cp.RetryStates[encoded]; ok {
				attempt = rs.Attempts + 1
			}
			queue.Push(&Job{
				StudyID:  study.ID,
				TenantID: study.TenantID,
				Cell:     key,
				Attempt:  attempt,
				Priority: study.Priority,
				Query:    study.Queries[key.QueryIndex],
			})
		}
	}

	manager := checkpoint.NewManager(o.engine, cp, o.checkpointCfg)

	runCtx, cancel := context.WithCancel(ctx)
	state := &studyState{
		study:   study,
		queue:   queue,
		manager: manager,
		status:  core.StudyRunning,
		pending: int64(queue.Len()),
		doneCh:  make(chan struct{}),
		cancel:  cancel,
	}
	if queue.Len() == 0 {
		close(state.doneCh)
	}

	o.mu.Lock()
	o.studies[study.ID] = state
	o.mu.Unlock()

	o.metrics.SetQueueDepth(study.ID, queue.Len())

	for i := 0; i < o.cfg.Worker.Count; i++ {
		state.wg.Add(1)
		go o.workerLoop(runCtx, state, i)
	}

	return StudyHandle{
		StudyID:                 study.ID,
		EstimatedCompletionTime: time.Now().Add(estimateDuration(study, o.cfg)),
	}, nil
}

// expandCells computes the Cartesian product of queries, surfaces and
// locations, sorted into the frozen dispatch order: priority (constant per
// study, so a no-op here), then surface id, then location id, then
// insertion order (query index ascending within a group).
func expandCells(study *core.Study) []core.CellKey {
	cells := make([]core.CellKey, 0, study.CellCount())
	for qi := range study.Queries {
		for _, surf := range study.Surfaces {
			for _, loc := range study.Locations {
				cells = append(cells, core.CellKey{QueryIndex: qi, SurfaceID: surf, LocationID: loc})
			}
		}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].SurfaceID != cells[j].SurfaceID {
			return cells[i].SurfaceID < cells[j].SurfaceID
		}
		if cells[i].LocationID != cells[j].LocationID {
			return cells[i].LocationID < cells[j].LocationID
		}
		return cells[i].QueryIndex < cells[j].QueryIndex
	})
	return cells
}

func estimateDuration(study *core.Study, cfg Config) time.Duration {
	perCell := cfg.Worker.JobTimeout / 4
	cells := study.CellCount()
	workers := cfg.Worker.Count
	if workers < 1 {
		workers = 1
	}
	rounds := (cells + workers - 1) / workers
	return time.Duration(rounds) * perCell
}

// GetStudyStatus reports the current status and per-surface coverage of a
// running or finished study.
func (o *Orchestrator) GetStudyStatus(studyID string) (StudyStatusReport, error) {
	state, ok := o.lookup(studyID)
	if !ok {
		return StudyStatusReport{}, ErrStudyNotFound
	}

	cp := state.manager.Checkpoint()
	surfaces := make(map[string]SurfaceProgress, len(state.study.Surfaces))
	for _, surf := range state.study.Surfaces {
		surfaces[surf] = SurfaceProgress{}
	}
	for encoded, r := range snapshotCellResults(cp) {
		key, err := core.DecodeCellKey(encoded, state.study.Locations)
		if err != nil {
			continue
		}
		p := surfaces[key.SurfaceID]
		p.Total++
		switch r.Status {
		case core.CellCompleted:
			p.Completed++
		case core.CellFailed:
			p.Failed++
		}
		surfaces[key.SurfaceID] = p
	}
	for _, encoded := range cp.ExecutionQueue {
		key, err := core.DecodeCellKey(encoded, state.study.Locations)
		if err != nil {
			continue
		}
		if _, ok := cp.CellResults[encoded]; !ok {
			p := surfaces[key.SurfaceID]
			p.Total++
			surfaces[key.SurfaceID] = p
		}
	}

	state.mu.Lock()
	status := state.status
	state.mu.Unlock()

	return StudyStatusReport{
		StudyID:  studyID,
		Status:   status,
		Progress: cp.ProgressPercent,
		Surfaces: surfaces,
	}, nil
}

func snapshotCellResults(cp *checkpoint.Checkpoint) map[string]checkpoint.CellResult {
	out := make(map[string]checkpoint.CellResult, len(cp.CellResults))
	for k, v := range cp.CellResults {
		out[k] = v
	}
	return out
}

// CancelStudy marks every non-terminal cell skipped and stops dispatch. It
// also cancels the study's run context, so jobs already in flight see their
// context cancelled; adapters that observe it abort.
func (o *Orchestrator) CancelStudy(studyID string) (bool, error) {
	state, ok := o.lookup(studyID)
	if !ok {
		return false, ErrStudyNotFound
	}

	state.mu.Lock()
	state.status = core.StudyCancelled
	state.mu.Unlock()

	cp := state.manager.Checkpoint()
	for _, encoded := range checkpoint.RemainingCells(cp) {
		key, err := core.DecodeCellKey(encoded, state.study.Locations)
		if err != nil {
			continue
		}
		_ = state.manager.RecordResult(key, checkpoint.CellResult{Status: core.CellSkipped})
	}
	state.cancel()
	return true, nil
}

// PauseStudy stops new dispatch for studyID; jobs already running finish.
func (o *Orchestrator) PauseStudy(studyID string) error {
	state, ok := o.lookup(studyID)
	if !ok {
		return ErrStudyNotFound
	}
	state.mu.Lock()
	state.paused = true
	if state.status == core.StudyRunning {
		state.status = core.StudyPaused
	}
	state.mu.Unlock()
	return nil
}

// ResumeStudy re-enables dispatch for a previously paused study.
func (o *Orchestrator) ResumeStudy(studyID string) error {
	state, ok := o.lookup(studyID)
	if !ok {
		return ErrStudyNotFound
	}
	state.mu.Lock()
	state.paused = false
	if state.status == core.StudyPaused {
		state.status = core.StudyRunning
	}
	state.mu.Unlock()
	return nil
}

// Await blocks until studyID's queue has drained (every cell terminal) or
// the context is cancelled, then returns its final status report.
func (o *Orchestrator) Await(ctx context.Context, studyID string) (StudyStatusReport, error) {
	state, ok := o.lookup(studyID)
	if !ok {
		return StudyStatusReport{}, ErrStudyNotFound
	}
	select {
	case <-state.doneCh:
	case <-ctx.Done():
		return StudyStatusReport{}, ctx.Err()
	}
	state.wg.Wait()
	o.finalizeStatus(state)
	return o.GetStudyStatus(studyID)
}

// SetMetrics attaches a Prometheus metrics sink. It is safe to call before
// any study is submitted; a nil m disables metrics (and nil Metrics values
// are themselves no-op safe, so this is also safe to skip entirely).
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

func (o *Orchestrator) lookup(studyID string) (*studyState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.studies[studyID]
	return s, ok
}

// finalizeStatus derives completed/partial/failed per spec §7 once a
// study's queue has drained, unless it was explicitly cancelled.
func (o *Orchestrator) finalizeStatus(state *studyState) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.status == core.StudyCancelled {
		return
	}

	cp := state.manager.Checkpoint()
	criteria := state.study.Completion
	required := criteria.RequiredSurfaces
	if len(required) == 0 {
		required = state.study.Surfaces
	}
	threshold := criteria.CoverageThreshold
	if threshold <= 0 {
		threshold = 1.0
	}

	totals := map[string]int{}
	completed := map[string]int{}
	for _, encoded := range cp.ExecutionQueue {
		key, err := core.DecodeCellKey(encoded, state.study.Locations)
		if err != nil {
			continue
		}
		totals[key.SurfaceID]++
		if r, ok := cp.CellResults[encoded]; ok && r.Status == core.CellCompleted {
			completed[key.SurfaceID]++
		}
	}

	allMet := true
	anySuccess := false
	for _, surf := range required {
		total := totals[surf]
		if total == 0 {
			continue
		}
		coverage := float64(completed[surf]) / float64(total)
		if completed[surf] > 0 {
			anySuccess = true
		}
		if coverage < threshold {
			allMet = false
		}
	}

	switch {
	case allMet:
		state.status = core.StudyCompleted
	case !anySuccess:
		state.status = core.StudyFailed
	default:
		state.status = core.StudyPartial
	}

	_ = state.manager.Finalize()
	o.bus.Emit(events.Event{Type: events.TypeStudyCompleted, StudyID: state.study.ID, Details: map[string]any{
		"status": string(state.status),
	}})
}
