package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hyodream/api/models"
)

const anonymousAuthor = "익명"

// EnrichmentStore owns product_details and crawled reviews.
// Every write after Claim is fenced on the claim token.
type EnrichmentStore struct {
	db *sql.DB
}

func NewEnrichmentStore(db *sql.DB) *EnrichmentStore {
	return &EnrichmentStore{db: db}
}

// GetState returns nil, nil for a product that has never been claimed.
func (s *EnrichmentStore) GetState(ctx context.Context, productID int64) (*models.EnrichmentState, error) {
	st := &models.EnrichmentState{ProductID: productID}
	var token uuid.NullUUID
	var synced, claimed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT status, original_price, discount_rate, seller, review_count, average_rating,
			positive_ratio, negative_ratio, analyzed_review_count, last_synced_at, claimed_at, claim_token
		FROM product_details
		WHERE product_id = $1
	`, productID).Scan(
		&st.Status, &st.Detail.OriginalPrice, &st.Detail.DiscountRate, &st.Detail.Seller,
		&st.Detail.ReviewCount, &st.Detail.AverageRating, &st.Detail.PositiveRatio,
		&st.Detail.NegativeRatio, &st.Detail.AnalyzedReviewCount, &synced, &claimed, &token,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get enrichment state for product %d: %w", productID, err)
	}
	if synced.Valid {
		st.LastSyncedAt = &synced.Time
	}
	if claimed.Valid {
		st.ClaimedAt = &claimed.Time
	}
	if token.Valid {
		st.ClaimToken = &token.UUID
	}
	return st, nil
}

// Claim atomically moves the row to PROGRESS under token if it needs a refresh.
// Exactly one of any number of concurrent callers gets true.
func (s *EnrichmentStore) Claim(ctx context.Context, productID int64, token uuid.UUID, staleAfter, jobTimeout time.Duration) (bool, error) {
	var got uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO product_details (product_id, status, claimed_at, claim_token)
		VALUES ($1, 'PROGRESS', now(), $2)
		ON CONFLICT (product_id) DO UPDATE
		SET status = 'PROGRESS', claimed_at = now(), claim_token = EXCLUDED.claim_token
		WHERE (
			product_details.status <> 'PROGRESS'
			AND (product_details.last_synced_at IS NULL
				OR product_details.last_synced_at < now() - make_interval(secs => $3))
		) OR (
			product_details.status = 'PROGRESS'
			AND (product_details.claimed_at IS NULL
				OR product_details.claimed_at < now() - make_interval(secs => $4))
		)
		RETURNING claim_token
	`, productID, token, staleAfter.Seconds(), jobTimeout.Seconds()).Scan(&got)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim product %d: %w", productID, err)
	}
	return got == token, nil
}

// SourceURL returns the shop page to crawl, or "" when the product has none.
func (s *EnrichmentStore) SourceURL(ctx context.Context, productID int64) (string, error) {
	var u string
	err := s.db.QueryRowContext(ctx, `SELECT item_url FROM products WHERE id = $1`, productID).Scan(&u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get source url for product %d: %w", productID, err)
	}
	return strings.TrimSpace(u), nil
}

// SaveDetail writes crawled product fields and stamps last_synced_at.
func (s *EnrichmentStore) SaveDetail(ctx context.Context, productID int64, token uuid.UUID, p models.CrawledProduct) error {
	return s.fenced(ctx, productID, token, func(tx *sql.Tx, _ models.AnalysisStatus) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE product_details
			SET original_price = $2, discount_rate = $3, seller = $4, review_count = $5,
				average_rating = $6, last_synced_at = now()
			WHERE product_id = $1
		`, productID, p.OriginalPrice, p.DiscountRate, p.Seller, p.ReviewCount, p.Rating)
		if err != nil {
			return fmt.Errorf("failed to save detail for product %d: %w", productID, err)
		}
		return nil
	})
}

// SaveReviews inserts crawled reviews, skipping blanks and ones already stored.
// Returns how many rows were new.
func (s *EnrichmentStore) SaveReviews(ctx context.Context, productID int64, reviews []models.CrawledReview) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reviews (product_id, external_review_id, author_name, content, score, product_option)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, external_review_id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare review insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range reviews {
		if strings.TrimSpace(r.ReviewContent) == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, productID, externalReviewID(r), anonymousAuthor,
			r.ReviewContent, r.Score(), r.ProductOptionContent)
		if err != nil {
			return 0, fmt.Errorf("failed to insert review for product %d: %w", productID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reviews: %w", err)
	}
	return inserted, nil
}

// Complete finalizes the job. A nil sentiment leaves the stored ratios unchanged.
func (s *EnrichmentStore) Complete(ctx context.Context, productID int64, token uuid.UUID, sentiment *models.Sentiment) error {
	return s.fenced(ctx, productID, token, func(tx *sql.Tx, _ models.AnalysisStatus) error {
		var err error
		if sentiment != nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE product_details
				SET status = 'COMPLETED', claim_token = NULL,
					positive_ratio = $2, negative_ratio = $3, analyzed_review_count = $4
				WHERE product_id = $1
			`, productID, sentiment.PositivePercent, sentiment.NegativePercent, sentiment.TotalReviews)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE product_details SET status = 'COMPLETED', claim_token = NULL
				WHERE product_id = $1
			`, productID)
		}
		if err != nil {
			return fmt.Errorf("failed to complete product %d: %w", productID, err)
		}
		return nil
	})
}

// Fail marks the job FAILED. A row that is already COMPLETED is left alone.
func (s *EnrichmentStore) Fail(ctx context.Context, productID int64, token uuid.UUID) error {
	return s.fenced(ctx, productID, token, func(tx *sql.Tx, status models.AnalysisStatus) error {
		if status == models.StatusCompleted {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE product_details SET status = 'FAILED', claim_token = NULL
			WHERE product_id = $1
		`, productID)
		if err != nil {
			return fmt.Errorf("failed to mark product %d failed: %w", productID, err)
		}
		return nil
	})
}

// fenced runs fn in a transaction holding the row lock, only while token still owns the row.
func (s *EnrichmentStore) fenced(ctx context.Context, productID int64, token uuid.UUID, fn func(*sql.Tx, models.AnalysisStatus) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var status models.AnalysisStatus
	var current uuid.NullUUID
	err = tx.QueryRowContext(ctx, `
		SELECT status, claim_token FROM product_details WHERE product_id = $1 FOR UPDATE
	`, productID).Scan(&status, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %d: %w", productID, ErrClaimLost)
		}
		return fmt.Errorf("failed to lock product %d: %w", productID, err)
	}
	if !current.Valid || current.UUID != token {
		return fmt.Errorf("product %d: %w", productID, ErrClaimLost)
	}

	if err := fn(tx, status); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product %d: %w", productID, err)
	}
	return nil
}

// externalReviewID falls back to a content hash when the shop gave no id,
// so re-crawls stay idempotent.
func externalReviewID(r models.CrawledReview) string {
	if id := strings.TrimSpace(string(r.ID)); id != "" {
		return id
	}
	return "sha1:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(r.ReviewContent+"\x00"+r.ProductOptionContent)).String()
}
