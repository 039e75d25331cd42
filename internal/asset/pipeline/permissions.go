package pipeline

import (
	"github.com/assetsvc/assetsvc/internal/asset/identity"
)

// Permissions is the external access-token/permission service stand-in
// (out of scope per §1): the pipeline only ever asks it yes/no questions
// about the current caller.
type Permissions interface {
	HasCrossUserPermission(caller identity.IPCCaller) bool
	HasPersistencePermission(caller identity.IPCCaller) bool
}

// permAdapter satisfies both tag.PermissionChecker and
// identity.PermissionChecker from one resolved CallingInfo plus the
// injected Permissions service, so C1/C6 stay pure and only C7 knows how
// to wire them together.
type permAdapter struct {
	perms  Permissions
	caller identity.IPCCaller
	info   identity.CallingInfo
}

func (p permAdapter) HasCrossUserPermission() bool {
	if p.perms == nil {
		return false
	}
	return p.perms.HasCrossUserPermission(p.caller)
}

func (p permAdapter) HasPersistencePermission() bool {
	if p.perms == nil {
		return false
	}
	return p.perms.HasPersistencePermission(p.caller)
}

func (p permAdapter) IsClone() bool {
	return p.info.AppIndex() != 0
}

func (p permAdapter) IsGroupOwner() bool {
	return p.info.OwnerType == identity.OwnerHapGroup
}

// accountAdapter satisfies tag.AccountChecker.
type accountAdapter struct {
	accounts AccountService
}

// AccountService is the external OS account service stand-in (out of
// scope per §1).
type AccountService interface {
	UserIDExists(userID uint32) bool
}

func (a accountAdapter) UserIDExists(userID uint32) bool {
	if a.accounts == nil {
		return true
	}
	return a.accounts.UserIDExists(userID)
}
