package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kdgroup/jobledger"
	"github.com/kdgroup/jobledger/id"
)

// Rows store the full record as a JSONB body next to the columns that are
// filtered, ordered or constrained on.

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jobledger/postgres: encode: %w", err)
	}
	return b, nil
}

func decode[T any](body []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("jobledger/postgres: decode: %w", err)
	}
	return v, nil
}

func collect[T any](rows pgx.Rows) ([]*T, error) {
	defer rows.Close()

	result := make([]*T, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		v, err := decode[T](body)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// nullable maps empty strings and nil IDs to SQL NULL so partial unique
// indexes ignore them.
func nullable(v any) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
	case id.ID:
		if t.IsNil() {
			return nil
		}
		return t.String()
	}
	return v
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrapInsert(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("jobledger/postgres: %s: %w", op, jobledger.ErrAlreadyExists)
	}
	return fmt.Errorf("jobledger/postgres: %s: %w", op, err)
}

// where accumulates positional conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	out := " WHERE " + w.conds[0]
	for _, c := range w.conds[1:] {
		out += " AND " + c
	}
	return out
}

func (w *where) page(limit, offset int) string {
	out := ""
	if limit > 0 {
		w.args = append(w.args, limit)
		out += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	if offset > 0 {
		w.args = append(w.args, offset)
		out += fmt.Sprintf(" OFFSET $%d", len(w.args))
	}
	return out
}
