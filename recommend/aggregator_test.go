package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"hyodream/api/config"
	"hyodream/api/models"
)

type fakeInterests struct {
	top map[string]string
	err error
}

func (f *fakeInterests) TopCategory(_ context.Context, actor string) (string, error) {
	return f.top[actor], f.err
}

type fakeCatalog struct {
	mu        sync.Mutex
	byKeyword map[string][]models.Product
	byBenefit map[string][]models.Product
	byDisease map[string][]models.Product
	popular   []models.Product
	newest    []models.Product
	all       map[int64]models.Product
	listing   []models.Product
	together  map[int64][]models.Product
	similar   map[int64][]models.Product

	benefitErr error
	listErr    error
	lastSort   string
	limits     map[string]int
	allergies  [][]string
}

func (c *fakeCatalog) record(key string, limit int, allergies []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limits == nil {
		c.limits = map[string]int{}
	}
	c.limits[key] = limit
	c.allergies = append(c.allergies, allergies)
}

func take(ps []models.Product, limit int) []models.Product {
	if len(ps) > limit {
		return ps[:limit]
	}
	return ps
}

func (c *fakeCatalog) FindByInterest(_ context.Context, kw string, allergies []string, limit int) ([]models.Product, error) {
	c.record("interest:"+kw, limit, allergies)
	return take(c.byKeyword[kw], limit), nil
}

func (c *fakeCatalog) FindByBenefit(_ context.Context, b string, allergies []string, limit int) ([]models.Product, error) {
	c.record("benefit:"+b, limit, allergies)
	if c.benefitErr != nil {
		return nil, c.benefitErr
	}
	return take(c.byBenefit[b], limit), nil
}

func (c *fakeCatalog) TopByDiseaseCohort(_ context.Context, d string, _ int64, allergies []string, limit int) ([]models.Product, error) {
	c.record("disease:"+d, limit, allergies)
	return take(c.byDisease[d], limit), nil
}

func (c *fakeCatalog) TopByRecentSales(_ context.Context, limit int) ([]models.Product, error) {
	return take(c.popular, limit), nil
}

func (c *fakeCatalog) Newest(_ context.Context, limit int) ([]models.Product, error) {
	return take(c.newest, limit), nil
}

func (c *fakeCatalog) List(_ context.Context, allergies []string, sort string, limit, offset int) ([]models.Product, error) {
	c.record("list", limit, allergies)
	c.lastSort = sort
	if c.listErr != nil {
		return nil, c.listErr
	}
	if offset >= len(c.listing) {
		return nil, nil
	}
	return take(c.listing[offset:], limit), nil
}

func (c *fakeCatalog) BoughtTogether(_ context.Context, id int64, limit int) ([]models.Product, error) {
	return take(c.together[id], limit), nil
}

func (c *fakeCatalog) SimilarByBenefits(_ context.Context, id int64, limit int) ([]models.Product, error) {
	return take(c.similar[id], limit), nil
}

func (c *fakeCatalog) FindByIDs(_ context.Context, ids []int64) (map[int64]models.Product, error) {
	out := map[int64]models.Product{}
	for _, id := range ids {
		if p, ok := c.all[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeProfiles struct {
	profile *models.HealthProfile
	err     error
}

func (f *fakeProfiles) GetHealthProfile(context.Context, int64) (*models.HealthProfile, error) {
	return f.profile, f.err
}

type fakeRanker struct {
	ids  []int64
	err  error
	last models.RankRequest
}

func (f *fakeRanker) Rank(_ context.Context, req models.RankRequest) ([]int64, error) {
	f.last = req
	return f.ids, f.err
}

func products(ids ...int64) []models.Product {
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Product{ID: id, Category1: "c"})
	}
	return out
}

func ids(s *models.RecommendationSection) []int64 {
	if s == nil {
		return nil
	}
	out := make([]int64, 0, len(s.Products))
	for _, p := range s.Products {
		out = append(out, p.ID)
	}
	return out
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var testCfg = config.RecommendConfig{
	RealTimeQuota:    4,
	GoalQuota:        2,
	DiseaseQuota:     2,
	DiseaseCohortTop: 3,
	AIQuota:          3,
	PopularPool:      80,
	NewestPool:       20,
}

type world struct {
	interests *fakeInterests
	catalog   *fakeCatalog
	profiles  *fakeProfiles
	ranker    *fakeRanker
	agg       *Aggregator
}

func newWorld() *world {
	all := map[int64]models.Product{}
	for _, p := range products(1, 2, 3, 4, 5, 6, 7, 8, 9, 101, 102, 103, 104) {
		all[p.ID] = p
	}
	w := &world{
		interests: &fakeInterests{top: map[string]string{"user:7": "vitamin", "session:s1": "vitamin"}},
		catalog: &fakeCatalog{
			byKeyword: map[string][]models.Product{"vitamin": products(1, 2, 3, 4, 5)},
			byBenefit: map[string][]models.Product{"sleep": products(3, 4, 6, 7), "eye": products(6, 8)},
			byDisease: map[string][]models.Product{"hypertension": products(7, 8, 9)},
			popular:   products(101, 102, 1),
			newest:    products(103, 1),
			all:       all,
		},
		profiles: &fakeProfiles{profile: &models.HealthProfile{
			UserID:    7,
			Diseases:  []string{"hypertension"},
			Allergies: []string{"soy"},
			Goals:     []string{"sleep", "eye"},
		}},
		ranker: &fakeRanker{ids: []int64{101, 999, 3, 102, 103}},
	}
	w.agg = NewAggregator(w.interests, w.catalog, w.profiles, w.ranker, testCfg)
	return w
}

func TestRecommend_GlobalDedupAndQuotas(t *testing.T) {
	w := newWorld()
	rec := w.agg.Recommend(context.Background(), Request{ActorID: "user:7", UserID: 7, Authenticated: true})

	if got := ids(rec.RealTime); !equal(got, []int64{1, 2, 3, 4}) {
		t.Errorf("realTime = %v", got)
	}
	if len(rec.HealthGoals) != 2 {
		t.Fatalf("healthGoals = %d sections", len(rec.HealthGoals))
	}
	if got := ids(&rec.HealthGoals[0]); !equal(got, []int64{6, 7}) {
		t.Errorf("goal sleep = %v", got)
	}
	if got := ids(&rec.HealthGoals[1]); !equal(got, []int64{8}) {
		t.Errorf("goal eye = %v", got)
	}
	if len(rec.Diseases) != 1 {
		t.Fatalf("diseases = %d sections", len(rec.Diseases))
	}
	if got := ids(&rec.Diseases[0]); !equal(got, []int64{9}) {
		t.Errorf("disease = %v", got)
	}
	// 999 is unknown, 3 already placed.
	if got := ids(rec.AI); !equal(got, []int64{101, 102, 103}) {
		t.Errorf("ai = %v", got)
	}

	seen := map[int64]bool{}
	all := append([]models.RecommendationSection{*rec.RealTime, *rec.AI}, append(rec.HealthGoals, rec.Diseases...)...)
	for _, s := range all {
		for _, p := range s.Products {
			if seen[p.ID] {
				t.Errorf("product %d placed twice", p.ID)
			}
			seen[p.ID] = true
			if p.Reason == "" {
				t.Errorf("product %d has no reason", p.ID)
			}
		}
	}
}

func TestRecommend_OverFetchesByPlacedCount(t *testing.T) {
	w := newWorld()
	w.agg.Recommend(context.Background(), Request{ActorID: "user:7", UserID: 7, Authenticated: true})

	if got := w.catalog.limits["interest:vitamin"]; got != 4 {
		t.Errorf("real-time limit = %d, want 4", got)
	}
	if got := w.catalog.limits["benefit:sleep"]; got != 2+4 {
		t.Errorf("first goal limit = %d, want 6", got)
	}
	if got := w.catalog.limits["disease:hypertension"]; got != 3 {
		t.Errorf("disease limit = %d, want cohort top 3", got)
	}
	for _, a := range w.catalog.allergies {
		if len(a) != 1 || a[0] != "soy" {
			t.Errorf("catalog query without allergy filter: %v", a)
		}
	}
}

func TestRecommend_DiseaseSectionDrawsFromCohortTopOnly(t *testing.T) {
	w := newWorld()
	w.catalog.all[10] = models.Product{ID: 10, Category1: "c"}
	w.catalog.byDisease["hypertension"] = products(7, 8, 9, 10)
	rec := w.agg.Recommend(context.Background(), Request{ActorID: "user:7", UserID: 7, Authenticated: true})

	// 7 and 8 are placed by the goal sections; 10 is outside the top 3.
	if got := ids(&rec.Diseases[0]); !equal(got, []int64{9}) {
		t.Errorf("disease = %v, want [9]", got)
	}
}

func TestRecommend_AIPoolIsUnfilteredAndDeduped(t *testing.T) {
	w := newWorld()
	w.agg.Recommend(context.Background(), Request{ActorID: "user:7", UserID: 7, Authenticated: true})

	req := w.ranker.last
	var got []int64
	for _, c := range req.Candidates {
		got = append(got, c.ID)
	}
	if !equal(got, []int64{101, 102, 1, 103}) {
		t.Errorf("candidates = %v", got)
	}
	if len(req.AllergyNames) != 1 || req.AllergyNames[0] != "soy" || len(req.HealthGoalNames) != 2 {
		t.Errorf("profile context = %+v", req)
	}
}

func TestRecommend_Anonymous(t *testing.T) {
	w := newWorld()
	rec := w.agg.Recommend(context.Background(), Request{ActorID: "session:s1"})

	if got := ids(rec.RealTime); !equal(got, []int64{1, 2, 3, 4}) {
		t.Errorf("realTime = %v", got)
	}
	if len(rec.HealthGoals) != 0 || len(rec.Diseases) != 0 || rec.AI != nil {
		t.Errorf("anonymous got personal sections: %+v", rec)
	}
	if rec.HealthGoals == nil || rec.Diseases == nil {
		t.Error("section lists must be empty, not nil")
	}
	if w.catalog.allergies[0] != nil {
		t.Errorf("anonymous query filtered allergens: %v", w.catalog.allergies[0])
	}
}

func TestRecommend_SectionFailuresAreIsolated(t *testing.T) {
	tests := []struct {
		name  string
		setup func(w *world)
		check func(t *testing.T, rec *models.Recommendations)
	}{
		{
			name:  "ranker down drops only ai",
			setup: func(w *world) { w.ranker.err = errors.New("timeout") },
			check: func(t *testing.T, rec *models.Recommendations) {
				if rec.AI != nil {
					t.Error("ai section present")
				}
				if rec.RealTime == nil || len(rec.HealthGoals) != 2 || len(rec.Diseases) != 1 {
					t.Errorf("other sections lost: %+v", rec)
				}
			},
		},
		{
			name:  "interest store down",
			setup: func(w *world) { w.interests.err = errors.New("redis down") },
			check: func(t *testing.T, rec *models.Recommendations) {
				if rec.RealTime != nil {
					t.Error("realTime present")
				}
				// Nothing placed yet, so goals start from the top.
				if got := ids(&rec.HealthGoals[0]); !equal(got, []int64{3, 4}) {
					t.Errorf("goal sleep = %v", got)
				}
			},
		},
		{
			name:  "goal query error",
			setup: func(w *world) { w.catalog.benefitErr = errors.New("db") },
			check: func(t *testing.T, rec *models.Recommendations) {
				if len(rec.HealthGoals) != 0 {
					t.Errorf("goals = %+v", rec.HealthGoals)
				}
				if got := ids(&rec.Diseases[0]); !equal(got, []int64{7, 8}) {
					t.Errorf("disease = %v", got)
				}
			},
		},
		{
			name:  "profile unavailable keeps real-time unfiltered",
			setup: func(w *world) { w.profiles.err = errors.New("db") },
			check: func(t *testing.T, rec *models.Recommendations) {
				if rec.RealTime == nil || len(rec.HealthGoals) != 0 || rec.AI != nil {
					t.Errorf("rec = %+v", rec)
				}
			},
		},
		{
			name:  "no interest yet",
			setup: func(w *world) { w.interests.top = nil },
			check: func(t *testing.T, rec *models.Recommendations) {
				if rec.RealTime != nil {
					t.Error("realTime present without interest")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			tt.setup(w)
			tt.check(t, w.agg.Recommend(context.Background(), Request{ActorID: "user:7", UserID: 7, Authenticated: true}))
		})
	}
}
