package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Contact struct {
	ID    string
	Email string
	Name  string
}

// Directory resolves portal user ids to mail contacts. Unknown ids are absent from the result.
type Directory interface {
	Lookup(ctx context.Context, ids ...string) (map[string]Contact, error)
}

type pgDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) Directory {
	return &pgDirectory{pool: pool}
}

func (d *pgDirectory) Lookup(ctx context.Context, ids ...string) (map[string]Contact, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, email, display_name FROM portal_users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup contacts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Contact, len(ids))
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Email, &c.Name); err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}
