package models

// RecommendedProduct is a product placed in a section, with the reason it was picked.
type RecommendedProduct struct {
	Product
	Reason string `json:"reason"`
}

// RecommendationSection is one titled, quota-bounded group of products.
type RecommendationSection struct {
	Title    string               `json:"title"`
	Products []RecommendedProduct `json:"products"`
}

// Recommendations is the sectioned response. Empty sections are left out.
type Recommendations struct {
	RealTime    *RecommendationSection  `json:"realTime,omitempty"`
	HealthGoals []RecommendationSection `json:"healthGoals"`
	Diseases    []RecommendationSection `json:"diseases"`
	AI          *RecommendationSection  `json:"ai,omitempty"`
}

// RankCandidate is one product offered to the external ranker.
type RankCandidate struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	HealthBenefits []string `json:"healthBenefits"`
	Allergens      []string `json:"allergens"`
	Category       string   `json:"category"`
}

// RankRequest is the ranker's POST /recommend body.
type RankRequest struct {
	DiseaseNames    []string        `json:"diseaseNames"`
	AllergyNames    []string        `json:"allergyNames"`
	HealthGoalNames []string        `json:"healthGoalNames"`
	Candidates      []RankCandidate `json:"candidates"`
}

type RankResponse struct {
	ProductIDs []int64 `json:"product_ids"`
}
