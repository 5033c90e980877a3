package storage

import (
	"context"
	"errors"
	"strings"
)

// GetOrCreateUser maps a tailnet login to its users row, creating the row on
// the first request from that login. Sessions, reps and import logs are
// scoped to the returned ID. The stored display name follows the latest
// non-empty name Tailscale reports.
func (db *DB) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return 0, errors.New("empty login")
	}
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (login, display_name)
		VALUES ($1, $2)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = NOW(),
			    display_name = COALESCE(NULLIF($2, ''), users.display_name)
		RETURNING id
	`, login, strings.TrimSpace(displayName)).Scan(&id)
	return id, err
}
