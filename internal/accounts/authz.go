package accounts

import (
	"github.com/securepatrol-id/securepatrol-backend/pkg/enums"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
)

// AuthzContext identifies the actor behind an admin-surface operation. It is
// threaded explicitly into every privileged call and validated centrally,
// instead of trusting the caller's UI discipline.
type AuthzContext struct {
	ActorID string
	Role    enums.AccountRole
	Status  enums.AccountStatus
}

// Authz derives an authorization context from an authenticated account.
func Authz(account models.UserAccount) AuthzContext {
	return AuthzContext{
		ActorID: account.ID,
		Role:    account.Role,
		Status:  account.Status,
	}
}

func (a AuthzContext) isActiveAdmin() bool {
	return a.Role == enums.AccountRoleAdmin && a.Status == enums.AccountStatusActive
}

func requireAdmin(authz AuthzContext) error {
	if !authz.isActiveAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}
