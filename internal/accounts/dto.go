package accounts

import "github.com/securepatrol-id/securepatrol-backend/pkg/enums"

// RegisterInput is the self-registration payload. New accounts are always
// forced to pending status and the user role, whatever the caller supplies.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	Name        string `json:"name" validate:"required"`
	BadgeNumber string `json:"badge_number,omitempty"`
}

// CreateInput is the admin-initiated creation payload. Password is optional:
// when empty a temporary credential is generated and returned once.
type CreateInput struct {
	Email       string              `json:"email" validate:"required,email"`
	Password    string              `json:"password,omitempty"`
	Name        string              `json:"name" validate:"required"`
	BadgeNumber string              `json:"badge_number,omitempty"`
	Role        enums.AccountRole   `json:"role,omitempty"`
	Status      enums.AccountStatus `json:"status,omitempty"`
}

// UpdateInput is the admin edit payload. Zero-valued fields are left
// unchanged; the credential is never touched through this path.
type UpdateInput struct {
	ID          string              `json:"id" validate:"required"`
	Email       string              `json:"email,omitempty" validate:"omitempty,email"`
	Name        string              `json:"name,omitempty"`
	BadgeNumber *string             `json:"badge_number,omitempty"`
	Role        enums.AccountRole   `json:"role,omitempty"`
	Status      enums.AccountStatus `json:"status,omitempty"`
	AvatarURL   *string             `json:"avatar_url,omitempty"`
}

// ProfileInput is the self-service profile payload: only display fields, no
// role or status escalation.
type ProfileInput struct {
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name,omitempty"`
	BadgeNumber *string `json:"badge_number,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}
