package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGLookup reads accounts from a WordPress-style users/usermeta schema in Postgres.
type PGLookup struct {
	q                 queryer
	savedAddressQuery string
	emailQuery        string
}

var tablePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// NewPGLookup builds a lookup over <prefix>users and <prefix>usermeta.
// When pool is nil an in-memory directory is returned instead.
func NewPGLookup(pool *pgxpool.Pool, tablePrefix string) (Lookup, error) {
	if pool == nil {
		return NewMemory(), nil
	}
	return newPGLookup(pool, tablePrefix)
}

func newPGLookup(q queryer, tablePrefix string) (*PGLookup, error) {
	// The prefix is spliced into SQL, so it is restricted to identifier characters.
	if !tablePrefixPattern.MatchString(tablePrefix) {
		return nil, fmt.Errorf("accounts: invalid table prefix %q", tablePrefix)
	}
	return &PGLookup{
		q: q,
		savedAddressQuery: fmt.Sprintf(`
SELECT DISTINCT user_id
FROM %susermeta
WHERE (meta_key LIKE 'billing\_%%' OR meta_key LIKE 'shipping\_%%')
  AND meta_value <> ''
ORDER BY user_id ASC
`, tablePrefix),
		emailQuery: fmt.Sprintf(`
SELECT user_email
FROM %susers
WHERE id = $1
`, tablePrefix),
	}, nil
}

func (l *PGLookup) AccountsWithSavedAddress(ctx context.Context) ([]int64, error) {
	rows, err := l.q.Query(ctx, l.savedAddressQuery)
	if err != nil {
		return nil, fmt.Errorf("accounts: query saved addresses: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *PGLookup) ContactAddress(ctx context.Context, accountID int64) (string, error) {
	var email string
	err := l.q.QueryRow(ctx, l.emailQuery, accountID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("accounts: resolve email of %d: %w", accountID, err)
	}
	return email, nil
}
