package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"hyodream/api/models"
)

const productColumns = `p.id, p.name, p.price, p.image_url, p.item_url, p.brand, p.maker,
	p.category1, p.category2, p.category3, p.category4,
	p.health_benefits, p.allergens, p.recent_sales, p.created_at`

// allergenFilter excludes products sharing any allergen with the array bound at $n.
// A NULL array (no allergies) filters nothing.
func allergenFilter(n int) string {
	return fmt.Sprintf("NOT (p.allergens && COALESCE($%d::text[], '{}'))", n)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.ItemURL, &p.Brand, &p.Maker,
		&p.Category1, &p.Category2, &p.Category3, &p.Category4,
		pq.Array(&p.HealthBenefits), pq.Array(&p.Allergens), &p.RecentSales, &p.CreatedAt,
	)
	return p, err
}

// ProductStore reads the catalog. Its only write is the recent-sales refresh.
type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return &p, nil
}

// FindByIDs resolves ids to products. Unknown ids are absent from the map.
func (s *ProductStore) FindByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := s.query(ctx, "find products by ids",
		`SELECT `+productColumns+` FROM products p WHERE p.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// FindByInterest matches keyword against health benefits or any category level,
// best sellers first.
func (s *ProductStore) FindByInterest(ctx context.Context, keyword string, allergies []string, limit int) ([]models.Product, error) {
	return s.query(ctx, "find products by interest", `
		SELECT `+productColumns+`
		FROM products p
		WHERE (
			EXISTS (SELECT 1 FROM unnest(p.health_benefits) hb WHERE strpos(hb, $1) > 0)
			OR strpos(p.category1, $1) > 0
			OR strpos(p.category2, $1) > 0
			OR strpos(p.category3, $1) > 0
			OR strpos(p.category4, $1) > 0
		)
		AND `+allergenFilter(2)+`
		ORDER BY p.recent_sales DESC, p.id DESC
		LIMIT $3
	`, keyword, nullableArray(allergies), limit)
}

func (s *ProductStore) FindByBenefit(ctx context.Context, benefit string, allergies []string, limit int) ([]models.Product, error) {
	return s.query(ctx, "find products by benefit", `
		SELECT `+productColumns+`
		FROM products p
		WHERE EXISTS (SELECT 1 FROM unnest(p.health_benefits) hb WHERE strpos(hb, $1) > 0)
		AND `+allergenFilter(2)+`
		ORDER BY p.recent_sales DESC, p.id DESC
		LIMIT $3
	`, benefit, nullableArray(allergies), limit)
}

// TopByDiseaseCohort ranks products by how often users tagged with disease
// bought them in non-canceled orders. excludeUserID's own orders don't count.
func (s *ProductStore) TopByDiseaseCohort(ctx context.Context, disease string, excludeUserID int64, allergies []string, limit int) ([]models.Product, error) {
	return s.query(ctx, "find disease cohort products", `
		SELECT `+productColumns+`
		FROM products p
		JOIN order_items oi ON oi.product_id = p.id
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'ORDER'
		AND o.user_id <> $2
		AND o.user_id IN (
			SELECT t.user_id FROM user_health_tags t
			WHERE t.kind = 'disease' AND t.name = $1
		)
		AND `+allergenFilter(3)+`
		GROUP BY p.id
		ORDER BY COUNT(oi.id) DESC, p.id DESC
		LIMIT $4
	`, disease, excludeUserID, nullableArray(allergies), limit)
}

func (s *ProductStore) TopByRecentSales(ctx context.Context, limit int) ([]models.Product, error) {
	return s.query(ctx, "find popular products",
		`SELECT `+productColumns+` FROM products p ORDER BY p.recent_sales DESC, p.id DESC LIMIT $1`, limit)
}

func (s *ProductStore) Newest(ctx context.Context, limit int) ([]models.Product, error) {
	return s.query(ctx, "find newest products",
		`SELECT `+productColumns+` FROM products p ORDER BY p.created_at DESC, p.id DESC LIMIT $1`, limit)
}

// Listing orders accepted by List.
const (
	SortLatest  = "latest"
	SortPopular = "popular"
)

// List pages through the catalog without products sharing an allergen with
// allergies. Unknown sort values fall back to SortLatest.
func (s *ProductStore) List(ctx context.Context, allergies []string, sort string, limit, offset int) ([]models.Product, error) {
	order := "p.id DESC"
	if sort == SortPopular {
		order = "p.recent_sales DESC, p.id DESC"
	}
	return s.query(ctx, "list products", `
		SELECT `+productColumns+`
		FROM products p
		WHERE `+allergenFilter(1)+`
		ORDER BY `+order+`
		LIMIT $2 OFFSET $3
	`, nullableArray(allergies), limit, offset)
}

// BoughtTogether ranks products that share non-canceled orders with productID
// by how many such order lines they appear in.
func (s *ProductStore) BoughtTogether(ctx context.Context, productID int64, limit int) ([]models.Product, error) {
	return s.query(ctx, "find products bought together", `
		SELECT `+productColumns+`
		FROM products p
		JOIN order_items oi ON oi.product_id = p.id
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'ORDER'
		AND oi.order_id IN (
			SELECT t.order_id FROM order_items t WHERE t.product_id = $1
		)
		AND p.id <> $1
		GROUP BY p.id
		ORDER BY COUNT(oi.id) DESC, p.id DESC
		LIMIT $2
	`, productID, limit)
}

// SimilarByBenefits ranks products by how many health benefits they share
// with productID. Products sharing none are excluded.
func (s *ProductStore) SimilarByBenefits(ctx context.Context, productID int64, limit int) ([]models.Product, error) {
	return s.query(ctx, "find products with similar benefits", `
		SELECT `+productColumns+`
		FROM products p
		JOIN products target ON target.id = $1
		CROSS JOIN LATERAL (
			SELECT COUNT(*) AS shared
			FROM unnest(p.health_benefits) hb
			WHERE hb = ANY(target.health_benefits)
		) overlap
		WHERE p.id <> $1
		AND overlap.shared > 0
		ORDER BY overlap.shared DESC, p.id DESC
		LIMIT $2
	`, productID, limit)
}

// RefreshRecentSales recomputes recent_sales from non-canceled orders placed
// since the given time. Returns the number of rows whose count changed.
func (s *ProductStore) RefreshRecentSales(ctx context.Context, since time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products p
		SET recent_sales = COALESCE(s.qty, 0)
		FROM products p2
		LEFT JOIN (
			SELECT oi.product_id, SUM(oi.quantity) AS qty
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE o.status = 'ORDER' AND o.ordered_at >= $1
			GROUP BY oi.product_id
		) s ON s.product_id = p2.id
		WHERE p.id = p2.id
		AND p.recent_sales IS DISTINCT FROM COALESCE(s.qty, 0)
	`, since)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh recent sales: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *ProductStore) ListReviews(ctx context.Context, productID int64, limit, offset int) ([]models.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, COALESCE(external_review_id, ''), author_name, content, score, product_option, created_at
		FROM reviews
		WHERE product_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ExternalReviewID, &r.AuthorName, &r.Content, &r.Score, &r.ProductOption, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}

func (s *ProductStore) query(ctx context.Context, what, query string, args ...any) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product (%s): %w", what, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows (%s): %w", what, err)
	}
	return products, nil
}

// nullableArray binds an empty slice as SQL NULL.
func nullableArray(values []string) any {
	if len(values) == 0 {
		return nil
	}
	return pq.Array(values)
}
