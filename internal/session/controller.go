package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/montybuilt/MPS-sub000/internal/backend"
	"github.com/montybuilt/MPS-sub000/internal/eventlog"
	"github.com/montybuilt/MPS-sub000/internal/platform/metrics"
	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/quiz"
	"github.com/montybuilt/MPS-sub000/internal/storage"
)

const defaultFlushTimeout = 5 * time.Second

// Controller owns the single active session context.
type Controller struct {
	backend      backend.Backend
	repo         *storage.Repository
	notifier     Notifier
	dedupe       bool
	flushTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	sess    *Context
	kpis    *progress.KPISummary
	kpisLen int

	submitting atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets where submission results are published.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithDedupe skips fetched attempts already present in the log.
func WithDedupe(on bool) Option {
	return func(c *Controller) {
		c.dedupe = on
	}
}

// WithFlushTimeout bounds a session write-back.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.flushTimeout = d
	}
}

// WithClock sets the clock used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller over b and repo.
func NewController(b backend.Backend, repo *storage.Repository, opts ...Option) *Controller {
	c := &Controller{
		backend:      b,
		repo:         repo,
		dedupe:       true,
		flushTimeout: defaultFlushTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetupSession loads owner's profile: it rehydrates the stored log, resets it
// if it belongs to someone else, merges the attempts recorded since the
// watermark and rebuilds every table derived from the assignment tree.
//
// If the profile cannot be fetched the session is still installed from the
// cached state, and the returned Setup is marked stale alongside
// ErrProfileUnavailable.
func (c *Controller) SetupSession(ctx context.Context, owner string) (*Setup, error) {
	if owner == "" {
		return nil, fmt.Errorf("profile owner is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log, err := c.repo.LoadLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attempt log: %w", err)
	}
	if log.Owner != "" && log.Owner != owner {
		// The previous learner's unsent work goes out before it is dropped.
		if err := c.flushLocked(ctx, log.Owner); err != nil {
			slog.Warn("flush before profile switch failed", "user", log.Owner, "error", err)
		}
	}
	log.Dedupe = c.dedupe

	sess := &Context{
		ID:        uuid.New(),
		Owner:     owner,
		StartedAt: c.now(),
		Log:       log,
	}

	// A board with no stored history is seeded from the merged log below.
	seed := true
	if log.Bind(owner) {
		if err := c.repo.Reset(ctx); err != nil {
			return nil, err
		}
		sess.Board = quiz.NewScoreboard()
	} else {
		var stored bool
		if sess.Board, stored, err = c.repo.FindScoreboard(ctx); err != nil {
			return nil, err
		}
		seed = !stored
		if sess.Pointer, err = c.repo.LoadPointer(ctx); err != nil {
			return nil, err
		}
	}

	bundle, fetchErr := c.backend.FetchProfile(ctx, backend.ProfileRequest{
		LastUpdateWatermark: log.Watermark,
		ProfileOwner:        owner,
	})
	if fetchErr == nil && bundle.XPUsername != "" && bundle.XPUsername != owner {
		fetchErr = fmt.Errorf("profile belongs to %q", bundle.XPUsername)
	}

	if fetchErr != nil {
		metrics.BackendFailures.WithLabelValues("profile").Inc()
		slog.Warn("profile fetch failed, keeping cached state", "user", owner, "error", fetchErr)

		tree, err := c.repo.LoadAssignmentTree(ctx)
		if err != nil {
			return nil, err
		}
		if seed {
			sess.Board.SeedCorrect(log.Records)
		}
		c.rebuild(sess, tree)

		// The owner must be stored even offline, or the next load would
		// take this learner's queued answers for someone else's.
		if err := c.repo.SaveLog(ctx, log); err != nil {
			return nil, err
		}
		if err := c.repo.SaveScoreboard(ctx, sess.Board); err != nil {
			return nil, err
		}
		c.install(sess)
		return sess.setup(true), fmt.Errorf("%w: %v", ErrProfileUnavailable, fetchErr)
	}

	added := log.Apply(bundle.XPData, bundle.XPLastFetchedDatetime)
	if seed {
		sess.Board.SeedCorrect(log.Records)
	}
	tree := bundle.UserAssignments
	if tree == nil {
		tree = progress.AssignmentTree{}
	}
	c.rebuild(sess, tree)

	if err := c.repo.SaveLog(ctx, log); err != nil {
		return nil, err
	}
	if err := c.repo.SaveDerived(ctx, sess.Tree, sess.Tags, sess.Possible, sess.Completed); err != nil {
		return nil, err
	}
	if err := c.repo.SaveScoreboard(ctx, sess.Board); err != nil {
		return nil, err
	}

	c.install(sess)
	slog.Info("session ready",
		"user", owner,
		"session", sess.ID,
		"attempts", log.Len(),
		"fetched", added,
		"watermark", log.Watermark,
		"curricula", len(sess.Possible.Curriculum),
	)
	return sess.setup(false), nil
}

func (c *Controller) rebuild(sess *Context, tree progress.AssignmentTree) {
	sess.Tree = tree
	sess.Tags = progress.BuildTagSummary(tree)
	sess.Possible = progress.ComputePossibleXP(tree)
	sess.Completed = progress.IdentifyCompletedCurriculums(sess.Log.Records, tree)
}

func (c *Controller) install(sess *Context) {
	c.sess = sess
	c.kpis = nil
	metrics.ActiveSessions.Set(1)
}

// Owner returns the learner of the active session.
func (c *Controller) Owner() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "", ErrNoSession
	}
	return c.sess.Owner, nil
}

// KPIs returns the KPI summary of the active session. The summary is cached
// until the log grows or the tree is reloaded.
func (c *Controller) KPIs() (progress.KPISummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return progress.KPISummary{}, ErrNoSession
	}
	if c.kpis == nil || c.kpisLen != c.sess.Log.Len() {
		sum := progress.CalculateKPIs(c.sess.Log.Records, c.sess.Tree)
		c.kpis = &sum
		c.kpisLen = c.sess.Log.Len()
	}
	return *c.kpis, nil
}

// TagSummary returns the tag coverage of the active session.
func (c *Controller) TagSummary() (progress.TagSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNoSession
	}
	return c.sess.Tags, nil
}

// TagPerformance returns earned XP per tag for one content.
func (c *Controller) TagPerformance(contentID string) ([]progress.TagPerformance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNoSession
	}
	return progress.TagPerformanceFor(contentID, c.sess.Tags, c.sess.Log.Records), nil
}

// Completed returns the completed curricula of the active session.
func (c *Controller) Completed() (progress.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNoSession
	}
	return progress.NewSet(c.sess.Completed.Sorted()...), nil
}

// Scoreboard returns a copy of the running scoreboard.
func (c *Controller) Scoreboard() (*quiz.Scoreboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNoSession
	}
	return c.sess.Board.Clone(), nil
}

// NextQuestion picks the question to serve in a curriculum and moves the
// navigation pointers to it. If the backend cannot list the curriculum the
// order cached in the assignment tree is used.
func (c *Controller) NextQuestion(ctx context.Context, contentID, curriculumID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "", ErrNoSession
	}

	tasks, err := c.backend.FetchCurriculumTasks(ctx, curriculumID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return "", fmt.Errorf("curriculum %s: %w", curriculumID, err)
		}
		metrics.BackendFailures.WithLabelValues("curriculum").Inc()
		tasks = c.sess.Tree.TaskKeys(contentID, curriculumID)
		if len(tasks) == 0 {
			return "", fmt.Errorf("fetch curriculum %s: %w", curriculumID, err)
		}
		slog.Warn("curriculum fetch failed, using cached task order",
			"curriculum", curriculumID,
			"tasks", len(tasks),
			"error", err,
		)
	}

	qid := c.sess.Board.NextQuestion(tasks)
	if qid == "" {
		return "", fmt.Errorf("curriculum %s has no tasks: %w", curriculumID, backend.ErrNotFound)
	}

	c.sess.Pointer = storage.Pointer{ContentID: contentID, CurriculumID: curriculumID, QuestionID: qid}
	if err := c.repo.SavePointer(ctx, c.sess.Pointer); err != nil {
		return "", err
	}
	return qid, nil
}

// Question fetches a question payload.
func (c *Controller) Question(ctx context.Context, questionID string) (*backend.Question, error) {
	q, err := c.backend.FetchQuestion(ctx, questionID)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			metrics.BackendFailures.WithLabelValues("question").Inc()
			slog.Warn("question fetch failed", "question", questionID, "error", err)
		}
		return nil, err
	}
	return q, nil
}

// SubmitAnswer scores an answer, appends it to the log, recomputes the
// completed set, persists everything and publishes the result. Only one
// submission runs at a time; a concurrent call gets ErrSubmitInProgress.
func (c *Controller) SubmitAnswer(ctx context.Context, ans quiz.Answer) (*Result, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		metrics.RejectedSubmissions.Inc()
		return nil, ErrSubmitInProgress
	}
	defer c.submitting.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sess
	if sess == nil {
		return nil, ErrNoSession
	}

	if _, err := quiz.ParseStatus(string(ans.Status)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	if ans.QuestionID == "" {
		return nil, fmt.Errorf("%w: question id is required", ErrInvalidAnswer)
	}
	if ans.ContentID == "" {
		ans.ContentID = sess.Pointer.ContentID
	}
	if ans.CurriculumID == "" {
		ans.CurriculumID = sess.Pointer.CurriculumID
	}
	if ans.Standard == "" && ans.Objective == "" {
		for _, task := range sess.Tree[ans.ContentID][ans.CurriculumID] {
			if task.TaskKey == ans.QuestionID {
				ans.Standard, ans.Objective = task.Standard, task.Objective
				break
			}
		}
	}

	// Score against copies; the session only changes once the answer is
	// stored.
	board := sess.Board.Clone()
	d := board.UpdateXP(ans)
	rec := progress.AttemptRecord{
		QuestionID:   ans.QuestionID,
		ContentID:    ans.ContentID,
		CurriculumID: ans.CurriculumID,
		Standard:     ans.Standard,
		Objective:    ans.Objective,
		DXP:          d.DXP,
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
	}
	records := eventlog.Merge(sess.Log.Records, []progress.AttemptRecord{rec})
	completed := progress.IdentifyCompletedCurriculums(records, sess.Tree)

	if err := c.persistAnswer(ctx, sess.Board, board, rec, completed); err != nil {
		slog.Error("persisting answer failed", "user", sess.Owner, "question", rec.QuestionID, "error", err)
		return nil, err
	}

	sess.Board = board
	sess.Log.Append(rec)
	sess.Completed = completed
	c.kpis = nil

	metrics.AnswersSubmitted.WithLabelValues(string(ans.Status)).Inc()
	metrics.XPAwarded.Observe(d.DXP)

	res := &Result{
		QuestionID:          ans.QuestionID,
		ContentID:           ans.ContentID,
		CurriculumID:        ans.CurriculumID,
		Status:              ans.Status,
		Delta:               d,
		OverallXP:           sess.Board.OverallXP,
		CurriculumCompleted: sess.Completed.Has(ans.CurriculumID),
		Timestamp:           rec.Timestamp,
	}
	if s, ok := sess.Board.Content[ans.ContentID]; ok {
		res.ContentPercent = s.Percent()
	}
	if s, ok := sess.Board.Curriculum[ans.CurriculumID]; ok {
		res.CurriculumPercent = s.Percent()
	}

	if c.notifier != nil {
		c.notifier.Publish(ctx, sess.Owner, res)
	}
	return res, nil
}

// persistAnswer stores the new board, then queues and logs rec. If queueing
// or logging fails the earlier writes are undone so the store matches the
// unchanged session.
func (c *Controller) persistAnswer(ctx context.Context, prev, board *quiz.Scoreboard, rec progress.AttemptRecord, completed progress.Set) error {
	if err := c.repo.SaveScoreboard(ctx, board); err != nil {
		return err
	}
	if err := c.repo.AppendPending(ctx, rec); err != nil {
		c.restoreScoreboard(ctx, prev)
		return err
	}
	if err := c.repo.AppendAttempt(ctx, rec); err != nil {
		if uerr := c.repo.DropPending(ctx, rec); uerr != nil {
			slog.Error("undoing queued attempt failed", "question", rec.QuestionID, "error", uerr)
		}
		c.restoreScoreboard(ctx, prev)
		return err
	}
	// Completion is rebuilt on every load, so a failed cache write is not fatal.
	if err := c.repo.SaveCompleted(ctx, completed); err != nil {
		slog.Warn("caching completed curricula failed", "error", err)
	}
	return nil
}

func (c *Controller) restoreScoreboard(ctx context.Context, prev *quiz.Scoreboard) {
	if err := c.repo.SaveScoreboard(ctx, prev); err != nil {
		slog.Error("restoring scoreboard failed", "error", err)
	}
}

// Flush writes the session back to the backend. A failed flush is logged
// and reported but not retried.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ErrNoSession
	}
	return c.flushLocked(ctx, c.sess.Owner)
}

// flushLocked submits the stored session state of owner and drops the
// pending attempts it carried.
func (c *Controller) flushLocked(ctx context.Context, owner string) error {
	ctx, cancel := context.WithTimeout(ctx, c.flushTimeout)
	defer cancel()

	pending, err := c.repo.LoadPending(ctx)
	if err != nil {
		return err
	}
	board, err := c.repo.LoadScoreboard(ctx)
	if err != nil {
		return err
	}
	completed, err := c.repo.LoadCompleted(ctx)
	if err != nil {
		return err
	}

	snap := backend.SessionSnapshot{
		CompletedCurriculums: completed,
		ContentScores:        board.Content,
		CurriculumScores:     board.Curriculum,
		XP:                   board.OverallXP,
		CorrectAnswers:       board.Correct,
		IncorrectAnswers:     board.Incorrect,
		UpdatedAt:            c.now().UTC().Format(time.RFC3339),
		XPData:               pending,
	}
	if snap.XPData == nil {
		snap.XPData = []progress.AttemptRecord{}
	}

	if err := c.backend.SubmitSession(ctx, owner, snap); err != nil {
		metrics.BackendFailures.WithLabelValues("session").Inc()
		slog.Error("session flush failed", "user", owner, "pending", len(pending), "error", err)
		return fmt.Errorf("flush session: %w", err)
	}
	if err := c.repo.TrimPending(ctx, len(pending)); err != nil {
		return err
	}
	slog.Info("session flushed", "user", owner, "attempts", len(pending))
	return nil
}

// Close flushes and discards the active session.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	err := c.flushLocked(ctx, c.sess.Owner)
	slog.Info("session closed", "user", c.sess.Owner, "session", c.sess.ID)
	c.sess = nil
	c.kpis = nil
	metrics.ActiveSessions.Set(0)
	return err
}
