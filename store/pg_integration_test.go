//go:build integration_pg
// +build integration_pg

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"hyodream/api/database"
	"hyodream/api/models"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	client, err := database.NewPostgresDB(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	// Applying twice must be harmless.
	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema re-apply: %v", err)
	}
	return client.DB
}

func insertProduct(t *testing.T, db *sql.DB, name, itemURL, category string, benefits, allergens []string, sales int) int64 {
	t.Helper()
	// pq binds a nil slice as NULL; the array columns are NOT NULL.
	if benefits == nil {
		benefits = []string{}
	}
	if allergens == nil {
		allergens = []string{}
	}
	var id int64
	err := db.QueryRow(`
		INSERT INTO products (name, item_url, category1, health_benefits, allergens, recent_sales)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, name, itemURL, category, pq.Array(benefits), pq.Array(allergens), sales).Scan(&id)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return id
}

func insertUser(t *testing.T, db *sql.DB, email string) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRow(`INSERT INTO users (email, hashed_password) VALUES ($1, 'x') RETURNING id`, email).Scan(&id); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func insertOrder(t *testing.T, db *sql.DB, userID int64, status string, productIDs ...int64) {
	t.Helper()
	var orderID int64
	if err := db.QueryRow(`INSERT INTO orders (user_id, status) VALUES ($1, $2) RETURNING id`, userID, status).Scan(&orderID); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	for _, pid := range productIDs {
		if _, err := db.Exec(`INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, 1)`, orderID, pid); err != nil {
			t.Fatalf("insert order item: %v", err)
		}
	}
}

func TestEnrichmentStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	es := NewEnrichmentStore(db)
	stale, job := 72*time.Hour, 5*time.Minute

	t.Run("exactly one concurrent claim wins", func(t *testing.T) {
		pid := insertProduct(t, db, "omega", "https://shop/1", "fish", nil, nil, 0)

		const n = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := es.Claim(ctx, pid, uuid.New(), stale, job)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("wins = %d, want 1", wins)
		}

		st, err := es.GetState(ctx, pid)
		if err != nil || st == nil || st.Status != models.StatusProgress {
			t.Fatalf("state after claim: %+v err=%v", st, err)
		}
	})

	t.Run("full job then fresh row is not reclaimable", func(t *testing.T) {
		pid := insertProduct(t, db, "vitamin", "https://shop/2", "vit", nil, nil, 0)
		token := uuid.New()
		if ok, err := es.Claim(ctx, pid, token, stale, job); err != nil || !ok {
			t.Fatalf("claim: ok=%v err=%v", ok, err)
		}
		u, err := es.SourceURL(ctx, pid)
		if err != nil || u != "https://shop/2" {
			t.Fatalf("SourceURL = %q, %v", u, err)
		}
		if err := es.SaveDetail(ctx, pid, token, models.CrawledProduct{OriginalPrice: 20000, DiscountRate: 20, Seller: "s", ReviewCount: 150, Rating: 4.8}); err != nil {
			t.Fatalf("SaveDetail: %v", err)
		}
		reviews := []models.CrawledReview{
			{ID: "r1", ReviewContent: "좋아요", ReviewScore: "5"},
			{ID: "r2", ReviewContent: "  "},
			{ReviewContent: "no id", ReviewScore: "x"},
		}
		n, err := es.SaveReviews(ctx, pid, reviews)
		if err != nil || n != 2 {
			t.Fatalf("SaveReviews = %d, %v", n, err)
		}
		if n, _ := es.SaveReviews(ctx, pid, reviews); n != 0 {
			t.Errorf("re-save inserted %d, want 0", n)
		}
		if err := es.Complete(ctx, pid, token, &models.Sentiment{TotalReviews: 2, PositivePercent: 85.5, NegativePercent: 14.5}); err != nil {
			t.Fatalf("Complete: %v", err)
		}

		st, _ := es.GetState(ctx, pid)
		if st.Status != models.StatusCompleted || st.Detail.PositiveRatio != 85.5 || st.Detail.OriginalPrice != 20000 || st.LastSyncedAt == nil {
			t.Fatalf("completed state = %+v", st)
		}
		if ok, _ := es.Claim(ctx, pid, uuid.New(), stale, job); ok {
			t.Error("fresh COMPLETED row was reclaimed")
		}
		// Old token can no longer fail the row.
		if err := es.Fail(ctx, pid, token); !errors.Is(err, ErrClaimLost) {
			t.Errorf("Fail after complete = %v, want ErrClaimLost", err)
		}
		st, _ = es.GetState(ctx, pid)
		if st.Status != models.StatusCompleted {
			t.Errorf("status = %s after late fail", st.Status)
		}
	})

	t.Run("abandoned PROGRESS is reclaimed and fences the old job", func(t *testing.T) {
		pid := insertProduct(t, db, "probiotic", "https://shop/3", "gut", nil, nil, 0)
		old := uuid.New()
		if ok, _ := es.Claim(ctx, pid, old, stale, job); !ok {
			t.Fatal("first claim lost")
		}
		if ok, _ := es.Claim(ctx, pid, uuid.New(), stale, job); ok {
			t.Fatal("live PROGRESS row was reclaimed")
		}
		if _, err := db.Exec(`UPDATE product_details SET claimed_at = now() - interval '10 minutes' WHERE product_id = $1`, pid); err != nil {
			t.Fatal(err)
		}
		next := uuid.New()
		if ok, _ := es.Claim(ctx, pid, next, stale, job); !ok {
			t.Fatal("stuck PROGRESS row not reclaimed")
		}
		if err := es.SaveDetail(ctx, pid, old, models.CrawledProduct{Seller: "stale"}); !errors.Is(err, ErrClaimLost) {
			t.Errorf("old job write = %v, want ErrClaimLost", err)
		}
		if err := es.Fail(ctx, pid, next); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		st, _ := es.GetState(ctx, pid)
		if st.Status != models.StatusFailed || st.Detail.Seller == "stale" {
			t.Errorf("state = %+v", st)
		}
		// FAILED without data is immediately claimable again.
		if ok, _ := es.Claim(ctx, pid, uuid.New(), stale, job); !ok {
			t.Error("FAILED row not reclaimable")
		}
	})
}

func TestProductStore_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	ps := NewProductStore(db)
	us := NewUserStore(db)

	a := insertProduct(t, db, "A", "", "영양제", []string{"눈 건강"}, []string{"대두"}, 50)
	b := insertProduct(t, db, "B", "", "영양제", []string{"눈 건강", "피로"}, nil, 30)
	c := insertProduct(t, db, "C", "", "차", []string{"수면"}, nil, 10)

	t.Run("interest match excludes allergens", func(t *testing.T) {
		got, err := ps.FindByInterest(ctx, "영양", []string{"대두"}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != b {
			t.Errorf("got %+v, want only B", got)
		}
		got, _ = ps.FindByInterest(ctx, "영양", nil, 10)
		if len(got) != 2 || got[0].ID != a {
			t.Errorf("unfiltered got %+v, want A then B", got)
		}
	})

	t.Run("benefit match", func(t *testing.T) {
		got, err := ps.FindByBenefit(ctx, "수면", nil, 5)
		if err != nil || len(got) != 1 || got[0].ID != c {
			t.Errorf("got %+v err=%v", got, err)
		}
	})

	t.Run("disease cohort", func(t *testing.T) {
		me := insertUser(t, db, "me@x.io")
		other := insertUser(t, db, "other@x.io")
		for _, u := range []int64{me, other} {
			if _, err := us.SetHealthProfile(ctx, u, models.HealthProfileRequest{Diseases: []string{"고혈압"}}); err != nil {
				t.Fatal(err)
			}
		}
		insertOrder(t, db, other, "ORDER", c, c, b)
		insertOrder(t, db, other, "CANCEL", a, a, a)
		insertOrder(t, db, me, "ORDER", a, a, a, a)

		got, err := ps.TopByDiseaseCohort(ctx, "고혈압", me, nil, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != c || got[1].ID != b {
			t.Errorf("cohort = %+v, want C then B", got)
		}

		if _, err := ps.RefreshRecentSales(ctx, time.Now().Add(-30*24*time.Hour)); err != nil {
			t.Fatal(err)
		}
		p, _ := ps.GetProduct(ctx, a)
		if p.RecentSales != 4 {
			t.Errorf("recent sales of A = %d, want 4 (canceled excluded)", p.RecentSales)
		}
	})

	t.Run("find by ids skips unknown", func(t *testing.T) {
		m, err := ps.FindByIDs(ctx, []int64{a, 999999})
		if err != nil || len(m) != 1 {
			t.Errorf("FindByIDs = %v err=%v", m, err)
		}
	})

	t.Run("missing product", func(t *testing.T) {
		if _, err := ps.GetProduct(ctx, 424242); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("health profile keeps goal order", func(t *testing.T) {
		u := insertUser(t, db, "goals@x.io")
		if _, err := us.SetHealthProfile(ctx, u, models.HealthProfileRequest{Goals: []string{"수면", "눈 건강", "피로"}}); err != nil {
			t.Fatal(err)
		}
		p, err := us.GetHealthProfile(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(p.Goals) != "[수면 눈 건강 피로]" {
			t.Errorf("goals = %v", p.Goals)
		}
	})
}

func TestProductStore_RelatedAndListing_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	ps := NewProductStore(db)

	p1 := insertProduct(t, db, "P1", "", "영양제", []string{"눈 건강", "피로"}, nil, 50)
	p2 := insertProduct(t, db, "P2", "", "영양제", []string{"눈 건강"}, nil, 30)
	p3 := insertProduct(t, db, "P3", "", "영양제", []string{"피로", "눈 건강"}, nil, 10)
	p4 := insertProduct(t, db, "P4", "", "차", []string{"수면"}, nil, 0)
	p5 := insertProduct(t, db, "P5", "", "차", nil, []string{"대두"}, 100)

	buyer := insertUser(t, db, "buyer@x.io")
	insertOrder(t, db, buyer, "ORDER", p1, p2, p3)
	insertOrder(t, db, buyer, "ORDER", p1, p3)
	insertOrder(t, db, buyer, "CANCEL", p1, p4, p4)

	idsOf := func(ps []models.Product) []int64 {
		out := make([]int64, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	t.Run("bought together skips canceled orders and self", func(t *testing.T) {
		got, err := ps.BoughtTogether(ctx, p1, 5)
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(idsOf(got)) != fmt.Sprint([]int64{p3, p2}) {
			t.Errorf("bought together = %v, want [%d %d]", idsOf(got), p3, p2)
		}
		got, _ = ps.BoughtTogether(ctx, p5, 5)
		if len(got) != 0 {
			t.Errorf("never ordered product got %v", idsOf(got))
		}
	})

	t.Run("similar by shared benefit count", func(t *testing.T) {
		got, err := ps.SimilarByBenefits(ctx, p1, 5)
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(idsOf(got)) != fmt.Sprint([]int64{p3, p2}) {
			t.Errorf("similar = %v, want [%d %d]", idsOf(got), p3, p2)
		}
		got, _ = ps.SimilarByBenefits(ctx, p5, 5)
		if len(got) != 0 {
			t.Errorf("product without benefits got %v", idsOf(got))
		}
	})

	t.Run("list filters allergens and pages", func(t *testing.T) {
		got, err := ps.List(ctx, []string{"대두"}, SortLatest, 2, 1)
		if err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(idsOf(got)) != fmt.Sprint([]int64{p3, p2}) {
			t.Errorf("latest page = %v", idsOf(got))
		}
		got, _ = ps.List(ctx, nil, SortPopular, 2, 0)
		if fmt.Sprint(idsOf(got)) != fmt.Sprint([]int64{p5, p1}) {
			t.Errorf("popular = %v", idsOf(got))
		}
		got, _ = ps.List(ctx, []string{"대두"}, "bogus", 10, 0)
		if len(got) != 4 || got[0].ID != p4 {
			t.Errorf("fallback sort = %v", idsOf(got))
		}
	})
}
