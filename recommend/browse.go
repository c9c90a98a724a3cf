package recommend

import (
	"context"
	"fmt"

	"hyodream/api/models"
)

const (
	relatedLimit      = 5
	interestFrontLoad = 3
)

// BrowseRequest pages through the catalog. Page is 1-based.
type BrowseRequest struct {
	Request
	Sort  string
	Page  int
	Limit int
}

// Related returns products frequently bought with productID in non-canceled
// orders. Without order history it falls back to health-benefit overlap.
func (a *Aggregator) Related(ctx context.Context, productID int64) ([]models.Product, error) {
	products, err := a.catalog.BoughtTogether(ctx, productID, relatedLimit)
	if err != nil {
		return nil, err
	}
	if len(products) > 0 {
		return products, nil
	}
	return a.catalog.SimilarByBenefits(ctx, productID, relatedLimit)
}

// Browse returns one catalog page with the actor's allergens filtered out.
// The first page leads with the best matches for the actor's top interest
// category; the page stays de-duplicated and capped at Limit.
func (a *Aggregator) Browse(ctx context.Context, req BrowseRequest) ([]models.Product, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	var allergies []string
	if req.Authenticated {
		profile, err := a.profiles.GetHealthProfile(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load health profile: %w", err)
		}
		if profile != nil {
			allergies = profile.Allergies
		}
	}

	page, err := a.catalog.List(ctx, allergies, req.Sort, req.Limit, (req.Page-1)*req.Limit)
	if err != nil {
		return nil, err
	}
	if req.Page > 1 || req.ActorID == "" {
		return page, nil
	}

	lead := a.interestLead(ctx, req.ActorID, allergies)
	out := make([]models.Product, 0, req.Limit)
	seen := newIDSet()
	for _, p := range append(lead, page...) {
		if len(out) >= req.Limit {
			break
		}
		if seen.add(p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

// interestLead is best-effort: a failure only drops the lead.
func (a *Aggregator) interestLead(ctx context.Context, actorID string, allergies []string) []models.Product {
	category, err := a.interests.TopCategory(ctx, actorID)
	if err != nil {
		a.log.Warn().Err(err).Str("actor", actorID).Msg("top interest unavailable for listing")
		return nil
	}
	if category == "" {
		return nil
	}
	products, err := a.catalog.FindByInterest(ctx, category, allergies, interestFrontLoad)
	if err != nil {
		a.log.Warn().Err(err).Str("category", category).Msg("interest lead query failed")
		return nil
	}
	return products
}
