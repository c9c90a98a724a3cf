package models

import "time"

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	HashedPassword []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HealthTagKind distinguishes the three ordered tag lists of a profile.
type HealthTagKind string

const (
	TagDisease HealthTagKind = "disease"
	TagAllergy HealthTagKind = "allergy"
	TagGoal    HealthTagKind = "goal"
)

// HealthProfile is the personalization input for an authenticated user.
// Each list keeps the order the user entered it in.
type HealthProfile struct {
	UserID    int64    `json:"userId"`
	Diseases  []string `json:"diseases"`
	Allergies []string `json:"allergies"`
	Goals     []string `json:"healthGoals"`
}

type HealthProfileRequest struct {
	Diseases  []string `json:"diseases"`
	Allergies []string `json:"allergies"`
	Goals     []string `json:"healthGoals"`
}
