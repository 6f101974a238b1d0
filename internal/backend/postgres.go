package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/montybuilt/MPS-sub000/internal/curriculum"
	"github.com/montybuilt/MPS-sub000/internal/progress"
)

const dbTimeout = 5 * time.Second

// PostgresBackend is the backend of record on PostgreSQL. The watermark it
// hands out is the server-side recorded_at of the newest returned attempt.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates a backend over pool. The schema in
// internal/platform/database must already be applied.
func NewPostgresBackend(pool *pgxpool.Pool) (*PostgresBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) FetchProfile(ctx context.Context, req ProfileRequest) (*ProfileBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tree, err := b.assignments(ctx, req.ProfileOwner)
	if err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx,
		`SELECT question_id, content_id, curriculum_id, standard, objective, dxp, attempted_at, recorded_at
		 FROM xp_attempts
		 WHERE username = $1 AND recorded_at > $2
		 ORDER BY recorded_at ASC, id ASC`,
		req.ProfileOwner,
		ParseWatermark(req.LastUpdateWatermark),
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	watermark := req.LastUpdateWatermark
	var delta []progress.AttemptRecord
	for rows.Next() {
		var a progress.AttemptRecord
		var standard, objective string
		var recordedAt time.Time
		if err := rows.Scan(
			&a.QuestionID,
			&a.ContentID,
			&a.CurriculumID,
			&standard,
			&objective,
			&a.DXP,
			&a.Timestamp,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Standard = progress.Code(standard)
		a.Objective = progress.Code(objective)
		delta = append(delta, a)
		watermark = FormatWatermark(recordedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return &ProfileBundle{
		UserAssignments:       tree,
		XPData:                delta,
		XPLastFetchedDatetime: watermark,
		XPUsername:            req.ProfileOwner,
	}, nil
}

func (b *PostgresBackend) assignments(ctx context.Context, owner string) (progress.AssignmentTree, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT content_id, curriculum_id, task_key, difficulty, standard, objective, tags
		 FROM assignments
		 WHERE username = $1
		 ORDER BY content_id, curriculum_id, position`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	tree := make(progress.AssignmentTree)
	for rows.Next() {
		var contentID, curriculumID, standard, objective string
		var difficulty float64
		var task progress.TaskAssignment
		if err := rows.Scan(&contentID, &curriculumID, &task.TaskKey, &difficulty, &standard, &objective, &task.Tags); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		task.Difficulty = progress.Number(difficulty)
		task.Standard = progress.Code(standard)
		task.Objective = progress.Code(objective)

		curricula, ok := tree[contentID]
		if !ok {
			curricula = make(map[string][]progress.TaskAssignment)
			tree[contentID] = curricula
		}
		curricula[curriculumID] = append(curricula[curriculumID], task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return tree, nil
}

func (b *PostgresBackend) FetchCurriculumTasks(ctx context.Context, curriculumKey string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := b.pool.Query(ctx,
		`SELECT question_id FROM curriculum_tasks WHERE curriculum_id = $1 ORDER BY position ASC`,
		curriculumKey,
	)
	if err != nil {
		return nil, fmt.Errorf("query curriculum tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect curriculum tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks, nil
}

func (b *PostgresBackend) FetchQuestion(ctx context.Context, questionID string) (*Question, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var payload []byte
	err := b.pool.QueryRow(ctx,
		`SELECT payload FROM questions WHERE question_id = $1`,
		questionID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	var q Question
	if err := json.Unmarshal(payload, &q); err != nil {
		return nil, fmt.Errorf("%w: decode question %s: %v", ErrInvalidPayload, questionID, err)
	}
	return &q, nil
}

// SubmitSession stores the snapshot and records its attempts in one
// transaction. Attempts already recorded are ignored.
func (b *PostgresBackend) SubmitSession(ctx context.Context, owner string, snap SessionSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO session_snapshots (username, snapshot, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (username) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`,
		owner, body,
	); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	for _, a := range snap.XPData {
		if _, err := tx.Exec(ctx,
			`INSERT INTO xp_attempts (username, question_id, content_id, curriculum_id, standard, objective, dxp, attempted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (username, question_id, attempted_at) DO NOTHING`,
			owner, a.QuestionID, a.ContentID, a.CurriculumID, string(a.Standard), string(a.Objective), a.DXP, a.Timestamp,
		); err != nil {
			return fmt.Errorf("record attempt %s: %w", a.QuestionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}

// Import loads the contents of l into the database, assigning each content
// to its listed learners plus every owner in owners. Rows are replaced, so
// re-importing is safe.
func (b *PostgresBackend) Import(ctx context.Context, l *curriculum.Loader, owners []string) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	defer tx.Rollback(ctx)

	seenCurriculum := make(map[string]bool)
	for _, c := range l.AllContent() {
		learners := append(append([]string(nil), c.Learners...), owners...)
		for _, cur := range c.Curricula {
			if !seenCurriculum[cur.ID] {
				seenCurriculum[cur.ID] = true
				if _, err := tx.Exec(ctx, `DELETE FROM curriculum_tasks WHERE curriculum_id = $1`, cur.ID); err != nil {
					return fmt.Errorf("clear curriculum %s: %w", cur.ID, err)
				}
			}
			for pos, t := range cur.Tasks {
				if _, err := tx.Exec(ctx,
					`INSERT INTO curriculum_tasks (curriculum_id, position, question_id) VALUES ($1, $2, $3)
					 ON CONFLICT DO NOTHING`,
					cur.ID, pos, t.TaskKey,
				); err != nil {
					return fmt.Errorf("insert curriculum task: %w", err)
				}

				payload, err := json.Marshal(QuestionFromTask(t))
				if err != nil {
					return fmt.Errorf("marshal question %s: %w", t.TaskKey, err)
				}
				if _, err := tx.Exec(ctx,
					`INSERT INTO questions (question_id, payload) VALUES ($1, $2)
					 ON CONFLICT (question_id) DO UPDATE SET payload = EXCLUDED.payload`,
					t.TaskKey, payload,
				); err != nil {
					return fmt.Errorf("upsert question %s: %w", t.TaskKey, err)
				}

				tags := t.Tags
				if tags == nil {
					tags = []string{}
				}
				for _, owner := range learners {
					if _, err := tx.Exec(ctx,
						`INSERT INTO assignments (username, content_id, curriculum_id, position, task_key, difficulty, standard, objective, tags)
						 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
						 ON CONFLICT (username, content_id, curriculum_id, position) DO UPDATE SET
						   task_key = EXCLUDED.task_key, difficulty = EXCLUDED.difficulty,
						   standard = EXCLUDED.standard, objective = EXCLUDED.objective, tags = EXCLUDED.tags`,
						owner, c.ID, cur.ID, pos, t.TaskKey, t.Difficulty.Float(), string(t.Standard), string(t.Objective), tags,
					); err != nil {
						return fmt.Errorf("assign %s to %s: %w", t.TaskKey, owner, err)
					}
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import tx: %w", err)
	}
	return nil
}
