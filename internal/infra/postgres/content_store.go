package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"study-room-service/internal/domain"
)

// ContentStore reads questions from Postgres. Choices are kept as JSONB on the question row.
type ContentStore struct {
	pool *pgxpool.Pool
}

func NewContentStore(pool *pgxpool.Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

const questionColumns = `id, module_id, type, text, choices`

func (s *ContentStore) QuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE module_id=$1 ORDER BY position, id`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("load module %s: %v: %w", moduleID, err, domain.ErrStoreUnavailable)
	}
	return scanQuestions(rows)
}

func (s *ContentStore) QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %v: %w", err, domain.ErrStoreUnavailable)
	}
	loaded, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Question, len(loaded))
	for _, q := range loaded {
		byID[q.ID] = q
	}
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// SaveQuestions upserts questions, keeping their order within each module.
func (s *ContentStore) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	batch := &pgx.Batch{}
	for i, q := range questions {
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return fmt.Errorf("marshal choices for %s: %w", q.ID, err)
		}
		batch.Queue(`INSERT INTO questions (id, module_id, type, text, choices, position)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET module_id=EXCLUDED.module_id, type=EXCLUDED.type,
	text=EXCLUDED.text, choices=EXCLUDED.choices, position=EXCLUDED.position`,
			q.ID, q.ModuleID, string(q.Type), q.Text, choices, i)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range questions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save questions: %w", err)
		}
	}
	return nil
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()
	var out []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %v: %w", err, domain.ErrStoreUnavailable)
	}
	return out, nil
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q       domain.Question
		kind    string
		choices []byte
	)
	if err := row.Scan(&q.ID, &q.ModuleID, &kind, &q.Text, &choices); err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(kind)
	if err := json.Unmarshal(choices, &q.Choices); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal choices for %s: %w", q.ID, err)
	}
	return q, nil
}
