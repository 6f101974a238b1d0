package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/montybuilt/MPS-sub000/internal/eventlog"
	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/quiz"
)

// Keys of the persisted client-side state.
const (
	KeyAttempts            = "xpData"
	KeyWatermark           = "xpLastFetchedDatetime"
	KeyOwner               = "xpUsername"
	KeyAssignments         = "userAssignments"
	KeyTagSummary          = "tagSummary"
	KeyCurriculumXP        = "curriculumXP"
	KeyStandardObjectiveXP = "standardObjectiveXP"
	KeyCompleted           = "completedCurriculums"
	KeyCurrentContent      = "currentContent"
	KeyCurrentCurriculum   = "currentCurriculum"
	KeyCurrentQuestion     = "currentQuestion"
	KeyScoreboard          = "scoreboard"
	KeyPending             = "pendingAttempts"
)

// AllKeys lists every key the repository writes.
var AllKeys = []string{
	KeyAttempts, KeyWatermark, KeyOwner, KeyAssignments, KeyTagSummary,
	KeyCurriculumXP, KeyStandardObjectiveXP, KeyCompleted,
	KeyCurrentContent, KeyCurrentCurriculum, KeyCurrentQuestion,
	KeyScoreboard, KeyPending,
}

// Pointer is the learner's current navigation position.
type Pointer struct {
	ContentID    string `json:"currentContent"`
	CurriculumID string `json:"currentCurriculum"`
	QuestionID   string `json:"currentQuestion"`
}

// Repository exposes typed load/save accessors over a KV.
type Repository struct {
	kv KV
}

// NewRepository wraps kv. A nil kv gets a fresh MemoryKV.
func NewRepository(kv KV) *Repository {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &Repository{kv: kv}
}

// load decodes key into a T. A missing or undecodable entry yields the zero
// value; only store failures are returned as errors.
func load[T any](ctx context.Context, kv KV, key string) (T, error) {
	var v T
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return v, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("discarding corrupted stored value", "key", key, "error", err)
		var zero T
		return zero, nil
	}
	return v, nil
}

func save(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// LoadLog rebuilds the attempt log from its three keys.
func (r *Repository) LoadLog(ctx context.Context) (*eventlog.Log, error) {
	owner, err := load[string](ctx, r.kv, KeyOwner)
	if err != nil {
		return nil, err
	}
	watermark, err := load[string](ctx, r.kv, KeyWatermark)
	if err != nil {
		return nil, err
	}
	records, err := load[[]progress.AttemptRecord](ctx, r.kv, KeyAttempts)
	if err != nil {
		return nil, err
	}
	if watermark == "" {
		watermark = eventlog.Epoch
	}
	return &eventlog.Log{Owner: owner, Watermark: watermark, Records: records}, nil
}

// SaveLog writes the log's records, watermark and owner.
func (r *Repository) SaveLog(ctx context.Context, l *eventlog.Log) error {
	records := l.Records
	if records == nil {
		records = []progress.AttemptRecord{}
	}
	if err := save(ctx, r.kv, KeyAttempts, records); err != nil {
		return err
	}
	if err := save(ctx, r.kv, KeyWatermark, l.Watermark); err != nil {
		return err
	}
	return save(ctx, r.kv, KeyOwner, l.Owner)
}

// AppendAttempt adds one record to the stored log as a single
// read-modify-write.
func (r *Repository) AppendAttempt(ctx context.Context, rec progress.AttemptRecord) error {
	return r.appendRecords(ctx, KeyAttempts, []progress.AttemptRecord{rec})
}

// AppendPending queues records for the next session flush.
func (r *Repository) AppendPending(ctx context.Context, recs ...progress.AttemptRecord) error {
	return r.appendRecords(ctx, KeyPending, recs)
}

func (r *Repository) appendRecords(ctx context.Context, key string, recs []progress.AttemptRecord) error {
	err := r.kv.Update(ctx, key, func(old []byte, ok bool) ([]byte, error) {
		var records []progress.AttemptRecord
		if ok && len(old) > 0 {
			if err := json.Unmarshal(old, &records); err != nil {
				slog.Warn("discarding corrupted stored value", "key", key, "error", err)
				records = nil
			}
		}
		return json.Marshal(append(records, recs...))
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

// LoadPending returns attempts not yet flushed to the backend.
func (r *Repository) LoadPending(ctx context.Context) ([]progress.AttemptRecord, error) {
	return load[[]progress.AttemptRecord](ctx, r.kv, KeyPending)
}

// ClearPending drops the flush queue.
func (r *Repository) ClearPending(ctx context.Context) error {
	return r.kv.Delete(ctx, KeyPending)
}

// TrimPending drops the first n queued attempts, keeping any appended after
// they were read.
func (r *Repository) TrimPending(ctx context.Context, n int) error {
	err := r.kv.Update(ctx, KeyPending, func(old []byte, ok bool) ([]byte, error) {
		var records []progress.AttemptRecord
		if ok && len(old) > 0 {
			if err := json.Unmarshal(old, &records); err != nil {
				records = nil
			}
		}
		if n >= len(records) {
			return json.Marshal([]progress.AttemptRecord{})
		}
		return json.Marshal(records[n:])
	})
	if err != nil {
		return fmt.Errorf("trim %s: %w", KeyPending, err)
	}
	return nil
}

// DropPending removes the most recent queued attempt with rec's
// fingerprint. It is a no-op when none is queued.
func (r *Repository) DropPending(ctx context.Context, rec progress.AttemptRecord) error {
	fp := eventlog.Fingerprint(rec)
	err := r.kv.Update(ctx, KeyPending, func(old []byte, ok bool) ([]byte, error) {
		var records []progress.AttemptRecord
		if ok && len(old) > 0 {
			if err := json.Unmarshal(old, &records); err != nil {
				records = nil
			}
		}
		for i := len(records) - 1; i >= 0; i-- {
			if eventlog.Fingerprint(records[i]) == fp {
				records = append(records[:i], records[i+1:]...)
				break
			}
		}
		if records == nil {
			records = []progress.AttemptRecord{}
		}
		return json.Marshal(records)
	})
	if err != nil {
		return fmt.Errorf("drop %s: %w", KeyPending, err)
	}
	return nil
}

// LoadAssignmentTree returns the cached assignment tree.
func (r *Repository) LoadAssignmentTree(ctx context.Context) (progress.AssignmentTree, error) {
	tree, err := load[progress.AssignmentTree](ctx, r.kv, KeyAssignments)
	if tree == nil {
		tree = progress.AssignmentTree{}
	}
	return tree, err
}

// SaveDerived caches the assignment tree and everything derived from it.
func (r *Repository) SaveDerived(ctx context.Context, tree progress.AssignmentTree, tags progress.TagSummary, possible progress.PossibleXP, completed progress.Set) error {
	if err := save(ctx, r.kv, KeyAssignments, tree); err != nil {
		return err
	}
	if err := save(ctx, r.kv, KeyTagSummary, tags); err != nil {
		return err
	}
	if err := save(ctx, r.kv, KeyCurriculumXP, possible.Curriculum); err != nil {
		return err
	}
	if err := save(ctx, r.kv, KeyStandardObjectiveXP, possible.StandardObjective); err != nil {
		return err
	}
	return r.SaveCompleted(ctx, completed)
}

// LoadTagSummary returns the cached tag summary.
func (r *Repository) LoadTagSummary(ctx context.Context) (progress.TagSummary, error) {
	tags, err := load[progress.TagSummary](ctx, r.kv, KeyTagSummary)
	if tags == nil {
		tags = progress.TagSummary{}
	}
	return tags, err
}

// LoadPossibleXP returns the cached curriculum and objective ceilings.
func (r *Repository) LoadPossibleXP(ctx context.Context) (map[string]float64, map[string]map[string]float64, error) {
	curriculum, err := load[map[string]float64](ctx, r.kv, KeyCurriculumXP)
	if err != nil {
		return nil, nil, err
	}
	objectives, err := load[map[string]map[string]float64](ctx, r.kv, KeyStandardObjectiveXP)
	if err != nil {
		return nil, nil, err
	}
	if curriculum == nil {
		curriculum = map[string]float64{}
	}
	if objectives == nil {
		objectives = map[string]map[string]float64{}
	}
	return curriculum, objectives, nil
}

// LoadCompleted returns the cached completed-curriculum set.
func (r *Repository) LoadCompleted(ctx context.Context) (progress.Set, error) {
	s, err := load[progress.Set](ctx, r.kv, KeyCompleted)
	if s == nil {
		s = progress.Set{}
	}
	return s, err
}

// SaveCompleted caches the completed-curriculum set.
func (r *Repository) SaveCompleted(ctx context.Context, s progress.Set) error {
	if s == nil {
		s = progress.Set{}
	}
	return save(ctx, r.kv, KeyCompleted, s)
}

// LoadScoreboard returns the cached in-session scoreboard, or an empty one.
func (r *Repository) LoadScoreboard(ctx context.Context) (*quiz.Scoreboard, error) {
	b, _, err := r.FindScoreboard(ctx)
	return b, err
}

// FindScoreboard is LoadScoreboard that also reports whether a board was
// stored.
func (r *Repository) FindScoreboard(ctx context.Context) (*quiz.Scoreboard, bool, error) {
	b, err := load[*quiz.Scoreboard](ctx, r.kv, KeyScoreboard)
	if b == nil {
		return quiz.NewScoreboard(), false, err
	}
	return b, true, err
}

// SaveScoreboard caches the scoreboard.
func (r *Repository) SaveScoreboard(ctx context.Context, b *quiz.Scoreboard) error {
	return save(ctx, r.kv, KeyScoreboard, b)
}

// LoadPointer returns the navigation pointers.
func (r *Repository) LoadPointer(ctx context.Context) (Pointer, error) {
	var p Pointer
	var err error
	if p.ContentID, err = load[string](ctx, r.kv, KeyCurrentContent); err != nil {
		return p, err
	}
	if p.CurriculumID, err = load[string](ctx, r.kv, KeyCurrentCurriculum); err != nil {
		return p, err
	}
	p.QuestionID, err = load[string](ctx, r.kv, KeyCurrentQuestion)
	return p, err
}

// SavePointer writes the navigation pointers.
func (r *Repository) SavePointer(ctx context.Context, p Pointer) error {
	if err := save(ctx, r.kv, KeyCurrentContent, p.ContentID); err != nil {
		return err
	}
	if err := save(ctx, r.kv, KeyCurrentCurriculum, p.CurriculumID); err != nil {
		return err
	}
	return save(ctx, r.kv, KeyCurrentQuestion, p.QuestionID)
}

// Reset deletes every key the repository owns.
func (r *Repository) Reset(ctx context.Context) error {
	if err := r.kv.Delete(ctx, AllKeys...); err != nil {
		return fmt.Errorf("reset storage: %w", err)
	}
	return nil
}
