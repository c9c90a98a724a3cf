package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"hyodream/api/logging"
	"hyodream/api/models"
)

type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore instance.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser inserts a new user into the database.
func (s *UserStore) CreateUser(ctx context.Context, email string, hashedPassword []byte) (*models.User, error) {
	user := &models.User{}
	query := `
		INSERT INTO users (email, hashed_password)
		VALUES ($1, $2)
		RETURNING id, email, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query, email, hashedPassword).Scan(
		&user.ID,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("user with email '%s': %w", email, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logging.Info().Int64("user_id", user.ID).Msg("user created")
	return user, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1;
	`
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with email '%s': %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// GetHealthProfile returns the user's tags, each list in entry order.
// A user with no tags gets an empty profile, not an error.
func (s *UserStore) GetHealthProfile(ctx context.Context, userID int64) (*models.HealthProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name
		FROM user_health_tags
		WHERE user_id = $1
		ORDER BY kind, position, name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query health tags: %w", err)
	}
	defer rows.Close()

	profile := &models.HealthProfile{
		UserID:    userID,
		Diseases:  []string{},
		Allergies: []string{},
		Goals:     []string{},
	}
	for rows.Next() {
		var kind models.HealthTagKind
		var name string
		if err := rows.Scan(&kind, &name); err != nil {
			return nil, fmt.Errorf("failed to scan health tag: %w", err)
		}
		switch kind {
		case models.TagDisease:
			profile.Diseases = append(profile.Diseases, name)
		case models.TagAllergy:
			profile.Allergies = append(profile.Allergies, name)
		case models.TagGoal:
			profile.Goals = append(profile.Goals, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health tags: %w", err)
	}
	return profile, nil
}

// SetHealthProfile replaces all of the user's tags.
func (s *UserStore) SetHealthProfile(ctx context.Context, userID int64, req models.HealthProfileRequest) (*models.HealthProfile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_health_tags WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to clear health tags: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_health_tags (user_id, kind, name, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, kind, name) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare health tag insert: %w", err)
	}
	defer stmt.Close()

	profile := &models.HealthProfile{UserID: userID}
	for _, group := range []struct {
		kind  models.HealthTagKind
		names []string
		dst   *[]string
	}{
		{models.TagDisease, req.Diseases, &profile.Diseases},
		{models.TagAllergy, req.Allergies, &profile.Allergies},
		{models.TagGoal, req.Goals, &profile.Goals},
	} {
		*group.dst = cleanTags(group.names)
		for i, name := range *group.dst {
			if _, err := stmt.ExecContext(ctx, userID, group.kind, name, i); err != nil {
				return nil, fmt.Errorf("failed to insert %s tag %q: %w", group.kind, name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit health profile: %w", err)
	}
	return profile, nil
}

// cleanTags trims, drops blanks and duplicates, keeping first-seen order.
func cleanTags(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
