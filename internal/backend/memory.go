package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/montybuilt/MPS-sub000/internal/curriculum"
	"github.com/montybuilt/MPS-sub000/internal/progress"
)

type recordedAttempt struct {
	progress.AttemptRecord
	recordedAt time.Time
}

// MemoryBackend is an in-process Backend. It backs local mode from a
// curriculum.Loader and serves as the test double of the session layer.
type MemoryBackend struct {
	mu        sync.Mutex
	trees     map[string]progress.AssignmentTree
	treeFn    func(owner string) progress.AssignmentTree
	curricula map[string][]string
	questions map[string]Question
	attempts  map[string][]recordedAttempt
	sessions  map[string]SessionSnapshot
	last      time.Time
	now       func() time.Time
	failWith  error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		trees:     make(map[string]progress.AssignmentTree),
		curricula: make(map[string][]string),
		questions: make(map[string]Question),
		attempts:  make(map[string][]recordedAttempt),
		sessions:  make(map[string]SessionSnapshot),
		now:       time.Now,
	}
}

// NewMemoryBackendFromLoader serves the assignments, curricula and
// questions of l. Every learner listed on a content (or everyone, for
// contents without a list) sees it.
func NewMemoryBackendFromLoader(l *curriculum.Loader) *MemoryBackend {
	m := NewMemoryBackend()
	m.treeFn = l.Tree
	for _, c := range l.AllContent() {
		for _, cur := range c.Curricula {
			if _, seen := m.curricula[cur.ID]; !seen {
				keys, _ := l.CurriculumTasks(cur.ID)
				m.curricula[cur.ID] = keys
			}
			for _, t := range cur.Tasks {
				m.questions[t.TaskKey] = QuestionFromTask(t)
			}
		}
	}
	return m
}

// SetAssignments sets the assignment tree of owner.
func (m *MemoryBackend) SetAssignments(owner string, tree progress.AssignmentTree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trees[owner] = tree
}

// SetCurriculum sets the ordered task list of a curriculum.
func (m *MemoryBackend) SetCurriculum(curriculumID string, tasks []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curricula[curriculumID] = tasks
}

// SetQuestion stores a question payload.
func (m *MemoryBackend) SetQuestion(id string, q Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[id] = q
}

// RecordAttempts appends attempts to owner's server-side ledger.
func (m *MemoryBackend) RecordAttempts(owner string, recs ...progress.AttemptRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(owner, recs)
}

// Session returns the last snapshot submitted for owner.
func (m *MemoryBackend) Session(owner string) (SessionSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[owner]
	return s, ok
}

// FailWith makes every call return err until it is called with nil.
func (m *MemoryBackend) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// SetClock replaces the clock used to stamp recorded attempts.
func (m *MemoryBackend) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryBackend) FetchProfile(_ context.Context, req ProfileRequest) (*ProfileBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, fmt.Errorf("fetch profile: %w", m.failWith)
	}

	tree, ok := m.trees[req.ProfileOwner]
	if !ok && m.treeFn != nil {
		tree = m.treeFn(req.ProfileOwner)
	}
	if tree == nil {
		tree = progress.AssignmentTree{}
	}

	since := ParseWatermark(req.LastUpdateWatermark)
	watermark := req.LastUpdateWatermark
	var delta []progress.AttemptRecord
	for _, a := range m.attempts[req.ProfileOwner] {
		if !a.recordedAt.After(since) {
			continue
		}
		delta = append(delta, a.AttemptRecord)
		watermark = FormatWatermark(a.recordedAt)
	}

	return &ProfileBundle{
		UserAssignments:       tree,
		XPData:                delta,
		XPLastFetchedDatetime: watermark,
		XPUsername:            req.ProfileOwner,
	}, nil
}

func (m *MemoryBackend) FetchCurriculumTasks(_ context.Context, curriculumKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, fmt.Errorf("fetch curriculum %s: %w", curriculumKey, m.failWith)
	}
	tasks, ok := m.curricula[curriculumKey]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), tasks...), nil
}

func (m *MemoryBackend) FetchQuestion(_ context.Context, questionID string) (*Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, fmt.Errorf("fetch question %s: %w", questionID, m.failWith)
	}
	q, ok := m.questions[questionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *MemoryBackend) SubmitSession(_ context.Context, owner string, snap SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return fmt.Errorf("submit session: %w", m.failWith)
	}
	m.sessions[owner] = snap
	m.record(owner, snap.XPData)
	return nil
}

// record stamps recs with strictly increasing server times.
func (m *MemoryBackend) record(owner string, recs []progress.AttemptRecord) {
	for _, r := range recs {
		t := m.now().UTC().Truncate(time.Microsecond)
		if !t.After(m.last) {
			t = m.last.Add(time.Microsecond)
		}
		m.last = t
		m.attempts[owner] = append(m.attempts[owner], recordedAttempt{AttemptRecord: r, recordedAt: t})
	}
}
