// Package recommend assembles sectioned product recommendations.
//
// Sections are filled in a fixed order (real-time interest, health goals,
// diseases, AI pick) against one shared set of placed ids, so a product
// appears at most once per response. A failing section is logged and left
// out; it never fails the whole response.
package recommend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"hyodream/api/config"
	"hyodream/api/logging"
	"hyodream/api/metrics"
	"hyodream/api/models"
)

type InterestReader interface {
	TopCategory(ctx context.Context, actorID string) (string, error)
}

type Catalog interface {
	FindByInterest(ctx context.Context, keyword string, allergies []string, limit int) ([]models.Product, error)
	FindByBenefit(ctx context.Context, benefit string, allergies []string, limit int) ([]models.Product, error)
	TopByDiseaseCohort(ctx context.Context, disease string, excludeUserID int64, allergies []string, limit int) ([]models.Product, error)
	TopByRecentSales(ctx context.Context, limit int) ([]models.Product, error)
	Newest(ctx context.Context, limit int) ([]models.Product, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	List(ctx context.Context, allergies []string, sort string, limit, offset int) ([]models.Product, error)
	BoughtTogether(ctx context.Context, productID int64, limit int) ([]models.Product, error)
	SimilarByBenefits(ctx context.Context, productID int64, limit int) ([]models.Product, error)
}

type Profiles interface {
	GetHealthProfile(ctx context.Context, userID int64) (*models.HealthProfile, error)
}

type Ranker interface {
	Rank(ctx context.Context, req models.RankRequest) ([]int64, error)
}

// Request identifies who recommendations are for. UserID is meaningful only
// when Authenticated is set.
type Request struct {
	ActorID       string
	UserID        int64
	Authenticated bool
}

type Aggregator struct {
	interests InterestReader
	catalog   Catalog
	profiles  Profiles
	ranker    Ranker
	cfg       config.RecommendConfig
	log       zerolog.Logger
}

func NewAggregator(interests InterestReader, catalog Catalog, profiles Profiles, ranker Ranker, cfg config.RecommendConfig) *Aggregator {
	return &Aggregator{
		interests: interests,
		catalog:   catalog,
		profiles:  profiles,
		ranker:    ranker,
		cfg:       cfg,
		log:       logging.With("recommend"),
	}
}

func (a *Aggregator) Recommend(ctx context.Context, req Request) *models.Recommendations {
	out := &models.Recommendations{
		HealthGoals: []models.RecommendationSection{},
		Diseases:    []models.RecommendationSection{},
	}
	added := newIDSet()

	var profile *models.HealthProfile
	if req.Authenticated {
		p, err := a.profiles.GetHealthProfile(ctx, req.UserID)
		if err != nil {
			a.log.Error().Err(err).Int64("user_id", req.UserID).Msg("health profile unavailable")
		} else {
			profile = p
		}
	}
	var allergies []string
	if profile != nil {
		allergies = profile.Allergies
	}

	out.RealTime = a.realTime(ctx, req.ActorID, allergies, added)
	if profile == nil {
		return out
	}

	for _, goal := range profile.Goals {
		if s := a.goal(ctx, goal, allergies, added); s != nil {
			out.HealthGoals = append(out.HealthGoals, *s)
		}
	}
	for _, disease := range profile.Diseases {
		if s := a.disease(ctx, disease, req.UserID, allergies, added); s != nil {
			out.Diseases = append(out.Diseases, *s)
		}
	}
	out.AI = a.ai(ctx, profile, added)
	return out
}

func (a *Aggregator) realTime(ctx context.Context, actorID string, allergies []string, added idSet) *models.RecommendationSection {
	if actorID == "" {
		return nil
	}
	category, err := a.interests.TopCategory(ctx, actorID)
	if err != nil {
		return a.sectionError("real_time", err)
	}
	if category == "" {
		return a.sectionEmpty("real_time")
	}
	quota := a.cfg.RealTimeQuota
	products, err := a.catalog.FindByInterest(ctx, category, allergies, quota+added.len())
	if err != nil {
		return a.sectionError("real_time", err)
	}
	return a.fill("real_time", fmt.Sprintf("최근 보신 '%s' 관련 상품", category),
		fmt.Sprintf("최근 관심사 '%s' 관련", category), products, quota, added)
}

func (a *Aggregator) goal(ctx context.Context, goal string, allergies []string, added idSet) *models.RecommendationSection {
	quota := a.cfg.GoalQuota
	products, err := a.catalog.FindByBenefit(ctx, goal, allergies, quota+added.len())
	if err != nil {
		return a.sectionError("health_goal", err)
	}
	return a.fill("health_goal", fmt.Sprintf("고객님의 '%s' 관리를 위한 추천", goal),
		fmt.Sprintf("목표: %s", goal), products, quota, added)
}

func (a *Aggregator) disease(ctx context.Context, disease string, userID int64, allergies []string, added idSet) *models.RecommendationSection {
	// The cohort's top slice is fixed; products already placed shrink it.
	products, err := a.catalog.TopByDiseaseCohort(ctx, disease, userID, allergies, a.cfg.DiseaseCohortTop)
	if err != nil {
		return a.sectionError("disease", err)
	}
	return a.fill("disease", fmt.Sprintf("'%s' 환우들이 많이 선택한 상품", disease),
		fmt.Sprintf("같은 '%s' 환우들의 선택", disease), products, a.cfg.DiseaseQuota, added)
}

// ai ranks an unfiltered pool of popular and newest products with the user's
// full profile and keeps the ranker's order.
func (a *Aggregator) ai(ctx context.Context, profile *models.HealthProfile, added idSet) *models.RecommendationSection {
	pool, err := a.candidatePool(ctx)
	if err != nil {
		return a.sectionError("ai", err)
	}
	if len(pool) == 0 {
		return a.sectionEmpty("ai")
	}

	req := models.RankRequest{
		DiseaseNames:    nonNil(profile.Diseases),
		AllergyNames:    nonNil(profile.Allergies),
		HealthGoalNames: nonNil(profile.Goals),
		Candidates:      make([]models.RankCandidate, 0, len(pool)),
	}
	for _, p := range pool {
		req.Candidates = append(req.Candidates, models.RankCandidate{
			ID:             p.ID,
			Name:           p.Name,
			HealthBenefits: nonNil(p.HealthBenefits),
			Allergens:      nonNil(p.Allergens),
			Category:       p.Category1,
		})
	}

	ids, err := a.ranker.Rank(ctx, req)
	if err != nil {
		return a.sectionError("ai", err)
	}
	found, err := a.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return a.sectionError("ai", err)
	}

	ranked := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			ranked = append(ranked, p)
		}
	}
	return a.fill("ai", "AI가 분석한 맞춤 상품", "AI 종합 분석", ranked, a.cfg.AIQuota, added)
}

func (a *Aggregator) candidatePool(ctx context.Context) ([]models.Product, error) {
	popular, err := a.catalog.TopByRecentSales(ctx, a.cfg.PopularPool)
	if err != nil {
		return nil, err
	}
	newest, err := a.catalog.Newest(ctx, a.cfg.NewestPool)
	if err != nil {
		return nil, err
	}
	seen := newIDSet()
	pool := make([]models.Product, 0, len(popular)+len(newest))
	for _, p := range append(popular, newest...) {
		if seen.add(p.ID) {
			pool = append(pool, p)
		}
	}
	return pool, nil
}

// fill takes up to quota products not yet placed, in order, and marks them placed.
func (a *Aggregator) fill(section, title, reason string, products []models.Product, quota int, added idSet) *models.RecommendationSection {
	picked := make([]models.RecommendedProduct, 0, quota)
	for _, p := range products {
		if len(picked) >= quota {
			break
		}
		if !added.add(p.ID) {
			continue
		}
		picked = append(picked, models.RecommendedProduct{Product: p, Reason: reason})
	}
	if len(picked) == 0 {
		return a.sectionEmpty(section)
	}
	metrics.RecommendationSections.WithLabelValues(section, "served").Inc()
	return &models.RecommendationSection{Title: title, Products: picked}
}

func (a *Aggregator) sectionError(section string, err error) *models.RecommendationSection {
	metrics.RecommendationSections.WithLabelValues(section, "error").Inc()
	a.log.Warn().Err(err).Str("section", section).Msg("recommendation section skipped")
	return nil
}

func (a *Aggregator) sectionEmpty(section string) *models.RecommendationSection {
	metrics.RecommendationSections.WithLabelValues(section, "empty").Inc()
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type idSet map[int64]struct{}

func newIDSet() idSet { return idSet{} }

// add reports whether id was newly added.
func (s idSet) add(id int64) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s idSet) len() int { return len(s) }
