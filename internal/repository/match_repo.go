package repository

import "context"

// MatchRepository reads the matching service's table. Messaging requires an
// accepted match between the two users; the match workflow itself lives in
// the main application.
type MatchRepository struct {
	db DBTX
}

func NewMatchRepository(db DBTX) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) CanMessage(ctx context.Context, u1 string, u2 string) (bool, error) {
	a, b := CanonicalPair(u1, u2)

	var allowed bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM matches
			WHERE user_a = $1 AND user_b = $2 AND status = 'accepted'
		)
	`, a, b).Scan(&allowed)
	if err != nil {
		return false, err
	}
	return allowed, nil
}
