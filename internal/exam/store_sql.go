package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists the bank, sessions and instances through database/sql.
// Nested values (pools, answers, content packages) are stored as JSON text.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutTemplate(ctx context.Context, t Template) error {
	pj, err := json.Marshal(t.Pools)
	if err != nil {
		return &RepositoryError{Op: "put template", Err: err}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO templates (id,name,description,pools_json,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description,
			pools_json=EXCLUDED.pools_json, updated_at=EXCLUDED.updated_at`,
		t.ID, t.Name, t.Description, string(pj), toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		return &RepositoryError{Op: "put template", Err: err}
	}
	return nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, id string) (Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,description,pools_json,created_at,updated_at FROM templates WHERE id=$1`, id)
	var (
		t            Template
		pjson        string
		created, upd int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &pjson, &created, &upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
		}
		return Template{}, &RepositoryError{Op: "get template", Err: err}
	}
	if err := json.Unmarshal([]byte(pjson), &t.Pools); err != nil {
		return Template{}, &RepositoryError{Op: "get template", Msg: "decode pools", Err: err}
	}
	t.CreatedAt, t.UpdatedAt = fromMillis(created), fromMillis(upd)
	return t, nil
}

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	aj, err := json.Marshal(q.Answers)
	if err != nil {
		return &RepositoryError{Op: "put question", Err: err}
	}
	tj, err := json.Marshal(q.Tags)
	if err != nil {
		return &RepositoryError{Op: "put question", Err: err}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (id,text,answers_json,correct_answer_id,tags_json,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, answers_json=EXCLUDED.answers_json,
			correct_answer_id=EXCLUDED.correct_answer_id, tags_json=EXCLUDED.tags_json, updated_at=EXCLUDED.updated_at`,
		q.ID, q.Text, string(aj), q.CorrectAnswerID, string(tj), toMillis(q.CreatedAt), toMillis(q.UpdatedAt))
	if err != nil {
		return &RepositoryError{Op: "put question", Err: err}
	}
	return nil
}

func (s *SQLStore) GetQuestions(ctx context.Context, ids []string) ([]Question, error) {
	if len(ids) == 0 {
		return []Question{}, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,text,answers_json,correct_answer_id,tags_json,created_at,updated_at FROM questions WHERE id IN (`+strings.Join(ph, ",")+`)`,
		args...)
	if err != nil {
		return nil, &RepositoryError{Op: "get questions", Err: err}
	}
	defer rows.Close()

	byID := make(map[string]Question, len(ids))
	for rows.Next() {
		var (
			q            Question
			aj, tj       string
			created, upd int64
		)
		if err := rows.Scan(&q.ID, &q.Text, &aj, &q.CorrectAnswerID, &tj, &created, &upd); err != nil {
			return nil, &RepositoryError{Op: "get questions", Err: err}
		}
		if err := json.Unmarshal([]byte(aj), &q.Answers); err != nil {
			return nil, &RepositoryError{Op: "get questions", Msg: "decode answers of " + q.ID, Err: err}
		}
		if err := json.Unmarshal([]byte(tj), &q.Tags); err != nil {
			q.Tags = nil
		}
		q.CreatedAt, q.UpdatedAt = fromMillis(created), fromMillis(upd)
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, &RepositoryError{Op: "get questions", Err: err}
	}

	out := make([]Question, 0, len(byID))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) SaveSession(ctx context.Context, ts TestSession) error {
	return saveSession(ctx, s.db, ts)
}

// CreateSession writes the session and its instances in one transaction.
func (s *SQLStore) CreateSession(ctx context.Context, ts TestSession, instances []TestInstance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &RepositoryError{Op: "create session", Err: err}
	}
	defer tx.Rollback()

	if err := saveSession(ctx, tx, ts); err != nil {
		return err
	}
	for _, inst := range instances {
		if err := saveInstance(ctx, tx, inst); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return &RepositoryError{Op: "create session", Err: err}
	}
	return nil
}

func saveSession(ctx context.Context, ex execer, ts TestSession) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO test_sessions
		(id,template_id,examiner_id,time_limit_minutes,start_time,end_time,status,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET time_limit_minutes=EXCLUDED.time_limit_minutes,
			start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
			status=EXCLUDED.status, updated_at=EXCLUDED.updated_at`,
		ts.ID, ts.TemplateID, ts.ExaminerID, ts.TimeLimitMinutes, toMillis(ts.StartTime), toMillis(ts.EndTime),
		string(ts.Status), toMillis(ts.CreatedAt), toMillis(ts.UpdatedAt))
	if err != nil {
		return &RepositoryError{Op: "save session", Err: err}
	}
	return nil
}

const sessionCols = `id,template_id,examiner_id,time_limit_minutes,start_time,end_time,status,created_at,updated_at`

func (s *SQLStore) GetSession(ctx context.Context, id string) (TestSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM test_sessions WHERE id=$1`, id)
	ts, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TestSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return TestSession{}, &RepositoryError{Op: "get session", Err: err}
	}
	return ts, nil
}

func (s *SQLStore) ListSessions(ctx context.Context, status SessionStatus) ([]TestSession, error) {
	q := `SELECT ` + sessionCols + ` FROM test_sessions`
	var args []any
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &RepositoryError{Op: "list sessions", Err: err}
	}
	defer rows.Close()
	out := make([]TestSession, 0)
	for rows.Next() {
		ts, err := scanSession(rows)
		if err != nil {
			return nil, &RepositoryError{Op: "list sessions", Err: err}
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, &RepositoryError{Op: "list sessions", Err: err}
	}
	return out, nil
}

func (s *SQLStore) SaveInstance(ctx context.Context, inst TestInstance) error {
	return saveInstance(ctx, s.db, inst)
}

func saveInstance(ctx context.Context, ex execer, inst TestInstance) error {
	cj, err := json.Marshal(inst.TestContent)
	if err != nil {
		return &RepositoryError{Op: "save instance", Err: err}
	}
	var answers sql.NullString
	if inst.Answers != nil {
		aj, err := json.Marshal(inst.Answers)
		if err != nil {
			return &RepositoryError{Op: "save instance", Err: err}
		}
		answers = sql.NullString{String: string(aj), Valid: true}
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO test_instances
		(id,session_id,identifier,access_code,content_json,started_at,completed_at,answers_json,total_score,max_score,time_taken_minutes,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET started_at=EXCLUDED.started_at, completed_at=EXCLUDED.completed_at,
			answers_json=EXCLUDED.answers_json, total_score=EXCLUDED.total_score,
			max_score=EXCLUDED.max_score, time_taken_minutes=EXCLUDED.time_taken_minutes`,
		inst.ID, inst.SessionID, inst.Identifier, inst.AccessCode, string(cj),
		nullMillis(inst.StartedAt), nullMillis(inst.CompletedAt), answers,
		nullFloat(inst.TotalScore), nullFloat(inst.MaxScore), nullFloat(inst.TimeTakenMinutes),
		toMillis(inst.CreatedAt))
	if err != nil {
		return &RepositoryError{Op: "save instance", Err: err}
	}
	return nil
}

const instanceCols = `id,session_id,identifier,access_code,content_json,started_at,completed_at,answers_json,total_score,max_score,time_taken_minutes,created_at`

func (s *SQLStore) GetInstance(ctx context.Context, id string) (TestInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM test_instances WHERE id=$1`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TestInstance{}, fmt.Errorf("%w: %s", ErrTestInstanceNotFound, id)
		}
		return TestInstance{}, &RepositoryError{Op: "get instance", Err: err}
	}
	return inst, nil
}

func (s *SQLStore) GetInstanceByAccessCode(ctx context.Context, code string) (TestInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM test_instances WHERE access_code=$1`, code)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TestInstance{}, fmt.Errorf("%w: access code %s", ErrTestInstanceNotFound, code)
		}
		return TestInstance{}, &RepositoryError{Op: "get instance", Err: err}
	}
	return inst, nil
}

func (s *SQLStore) ListInstancesBySession(ctx context.Context, sessionID string) ([]TestInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceCols+` FROM test_instances WHERE session_id=$1 ORDER BY created_at, identifier`, sessionID)
	if err != nil {
		return nil, &RepositoryError{Op: "list instances", Err: err}
	}
	defer rows.Close()
	out := make([]TestInstance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, &RepositoryError{Op: "list instances", Err: err}
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, &RepositoryError{Op: "list instances", Err: err}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (TestSession, error) {
	var (
		ts               TestSession
		status           string
		start, end, c, u int64
	)
	if err := sc.Scan(&ts.ID, &ts.TemplateID, &ts.ExaminerID, &ts.TimeLimitMinutes, &start, &end, &status, &c, &u); err != nil {
		return TestSession{}, err
	}
	ts.Status = SessionStatus(status)
	ts.StartTime, ts.EndTime = fromMillis(start), fromMillis(end)
	ts.CreatedAt, ts.UpdatedAt = fromMillis(c), fromMillis(u)
	return ts, nil
}

func scanInstance(sc scanner) (TestInstance, error) {
	var (
		inst                   TestInstance
		content                string
		started, completed     sql.NullInt64
		answers                sql.NullString
		total, maxScore, taken sql.NullFloat64
		created                int64
	)
	if err := sc.Scan(&inst.ID, &inst.SessionID, &inst.Identifier, &inst.AccessCode, &content,
		&started, &completed, &answers, &total, &maxScore, &taken, &created); err != nil {
		return TestInstance{}, err
	}
	if err := json.Unmarshal([]byte(content), &inst.TestContent); err != nil {
		return TestInstance{}, fmt.Errorf("decode content of %s: %w", inst.ID, err)
	}
	if answers.Valid {
		inst.Answers = Answers{}
		if err := json.Unmarshal([]byte(answers.String), &inst.Answers); err != nil {
			return TestInstance{}, fmt.Errorf("decode answers of %s: %w", inst.ID, err)
		}
	}
	inst.StartedAt = millisPtr(started)
	inst.CompletedAt = millisPtr(completed)
	inst.TotalScore = floatPtr(total)
	inst.MaxScore = floatPtr(maxScore)
	inst.TimeTakenMinutes = floatPtr(taken)
	inst.CreatedAt = fromMillis(created)
	return inst, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
