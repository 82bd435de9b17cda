package models

import "github.com/securepatrol-id/securepatrol-backend/pkg/enums"

// UserAccount is the canonical identity record stored in the users partition.
// Email is unique across accounts, compared case-insensitively.
type UserAccount struct {
	ID           string              `json:"id"`
	Email        string              `json:"email"`
	Name         string              `json:"name"`
	BadgeNumber  string              `json:"badge_number,omitempty"`
	Role         enums.AccountRole   `json:"role"`
	Status       enums.AccountStatus `json:"status"`
	AvatarURL    string              `json:"avatar_url,omitempty"`
	PasswordHash string              `json:"password_hash,omitempty"`
}

// IsActiveAdmin reports whether the account may exercise admin operations.
func (u UserAccount) IsActiveAdmin() bool {
	return u.Role == enums.AccountRoleAdmin && u.Status == enums.AccountStatusActive
}

// Redacted returns a copy safe to hand to callers outside the data layer.
func (u UserAccount) Redacted() UserAccount {
	u.PasswordHash = ""
	return u
}
