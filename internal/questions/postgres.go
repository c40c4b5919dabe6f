package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

var _ Bank = (*Postgres)(nil)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect question bank: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping question bank: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

const selectQuestions = `
SELECT q.id, q.text, o.id, o.text, o.is_correct
FROM (
    SELECT id, text, position FROM questions
    WHERE set_ref = $1
    ORDER BY position
    LIMIT $2
) q
JOIN question_options o ON o.question_id = q.id
ORDER BY q.position, o.position`

func (p *Postgres) GetQuestions(ctx context.Context, setRef string, count int) ([]engine.Question, error) {
	rows, err := p.pool.Query(ctx, selectQuestions, setRef, count)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []engine.Question
	for rows.Next() {
		var qID, qText string
		var opt engine.Option
		if err := rows.Scan(&qID, &qText, &opt.ID, &opt.Text, &opt.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != qID {
			out = append(out, engine.Question{ID: qID, Text: qText})
		}
		last := &out[len(out)-1]
		last.Options = append(last.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	if len(out) == 0 {
		exists, err := p.setExists(ctx, setRef)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("question set %q: %w", setRef, engine.ErrNotFound)
		}
	}
	return out, nil
}

func (p *Postgres) setExists(ctx context.Context, setRef string) (bool, error) {
	var one int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM questions WHERE set_ref = $1 LIMIT 1`, setRef).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check question set: %w", err)
	}
	return true, nil
}

// Insert writes a question set in order, replacing nothing. Used for seeding.
func (p *Postgres) Insert(ctx context.Context, setRef string, qs []engine.Question) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for i, q := range qs {
			if err := Validate(q); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO questions (id, set_ref, position, text) VALUES ($1, $2, $3, $4)`,
				q.ID, setRef, i, q.Text); err != nil {
				return fmt.Errorf("insert question %s: %w", q.ID, err)
			}
			for j, o := range q.Options {
				if _, err := tx.Exec(ctx,
					`INSERT INTO question_options (question_id, id, position, text, is_correct) VALUES ($1, $2, $3, $4, $5)`,
					q.ID, o.ID, j, o.Text, o.IsCorrect); err != nil {
					return fmt.Errorf("insert option %s/%s: %w", q.ID, o.ID, err)
				}
			}
		}
		return nil
	})
}

// Seed inserts every set that is not in the database yet and returns how
// many sets it wrote. Existing sets are left alone.
func (p *Postgres) Seed(ctx context.Context, sets map[string][]engine.Question) (int, error) {
	n := 0
	for ref, qs := range sets {
		exists, err := p.setExists(ctx, ref)
		if err != nil {
			return n, err
		}
		if exists {
			continue
		}
		if err := p.Insert(ctx, ref, qs); err != nil {
			return n, fmt.Errorf("seed %s: %w", ref, err)
		}
		n++
	}
	return n, nil
}
