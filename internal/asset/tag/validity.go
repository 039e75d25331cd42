package tag

import (
	"fmt"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// AccountChecker and PermissionChecker are injected collaborators standing
// in for the external OS account and access-token services (out of scope
// per §1); CheckValidity calls them only for the tags that need them.
type AccountChecker interface {
	// UserIDExists reports whether userID names a real OS account.
	UserIDExists(userID uint32) bool
}

type PermissionChecker interface {
	// HasPersistencePermission reports whether the caller may set IsPersistent=true.
	HasPersistencePermission() bool
	// IsClone reports whether the caller is a cloned app instance (non-zero app index).
	IsClone() bool
	// IsGroupOwner reports whether the caller's store is a group-scoped owner.
	IsGroupOwner() bool
}

// CheckValidity validates asset against the three layers of §4.1: every tag
// must be allowed, every required tag must be present, every tag's value
// must match its declared DataType, and every value must fall within its
// declared range.
func CheckValidity(asset Asset, allowed, required []Tag, accounts AccountChecker, perms PermissionChecker) error {
	allowedSet := make(map[Tag]struct{}, len(allowed))
	for _, t := range allowed {
		allowedSet[t] = struct{}{}
	}

	for t, v := range asset {
		if _, ok := allowedSet[t]; !ok {
			return asseterr.New(asseterr.InvalidArgument, fmt.Sprintf("tag %s is not allowed for this operation", t))
		}
		if v.Type != t.ValueType() {
			return asseterr.New(asseterr.InvalidArgument, fmt.Sprintf("tag %s has wrong value type", t))
		}
		if err := checkRange(t, v, accounts, perms); err != nil {
			return err
		}
	}

	for _, t := range required {
		if _, ok := asset[t]; !ok {
			return asseterr.New(asseterr.InvalidArgument, fmt.Sprintf("missing required tag %s", t))
		}
	}

	return nil
}

func checkRange(t Tag, v Value, accounts AccountChecker, perms PermissionChecker) error {
	switch t {
	case Secret:
		return checkBytesLen(t, v, SecretMinLen, SecretMaxLen)
	case Alias:
		return checkBytesLen(t, v, AliasMinLen, AliasMaxLen)
	case AuthChallenge:
		return checkBytesLenExact(t, v, AuthChallengeLen)
	case AuthToken:
		return checkBytesLenExact(t, v, AuthTokenLen)
	case GroupId:
		if len(v.Bytes) == 0 {
			return asseterr.New(asseterr.InvalidArgument, "GroupId must not be empty")
		}
	case DataLabelCritical1, DataLabelCritical2, DataLabelCritical3, DataLabelCritical4,
		DataLabelNormal1, DataLabelNormal2, DataLabelNormal3, DataLabelNormal4,
		DataLabelNormalLocal1, DataLabelNormalLocal2, DataLabelNormalLocal3, DataLabelNormalLocal4:
		return checkBytesLen(t, v, 0, LabelMaxLen)
	case Accessibility:
		switch v.Num {
		case AccessibilityDevicePowerOn, AccessibilityDeviceFirstUnlocked, AccessibilityDeviceUnlocked:
		default:
			return asseterr.New(asseterr.InvalidArgument, "invalid Accessibility value")
		}
	case AuthType:
		switch v.Num {
		case AuthTypeNone, AuthTypeAny:
		default:
			return asseterr.New(asseterr.InvalidArgument, "invalid AuthType value")
		}
	case AuthValidityPeriod:
		if v.Num > AuthValidityPeriodMax {
			return asseterr.New(asseterr.InvalidArgument, "AuthValidityPeriod exceeds 600 seconds")
		}
	case SyncType:
		if v.Num&^uint32(syncTypeMask) != 0 {
			return asseterr.New(asseterr.InvalidArgument, "invalid SyncType bitmask")
		}
		if v.Num&SyncTypeTrustedAccount != 0 && perms != nil {
			if perms.IsClone() {
				return asseterr.New(asseterr.InvalidArgument, "SyncType.TrustedAccount is not allowed for cloned apps")
			}
			if perms.IsGroupOwner() {
				return asseterr.New(asseterr.InvalidArgument, "SyncType.TrustedAccount is not allowed for group owners")
			}
		}
	case WrapType:
		switch v.Num {
		case WrapTypeNever, WrapTypeTrustedAccount:
		default:
			return asseterr.New(asseterr.InvalidArgument, "invalid WrapType value")
		}
	case ReturnType:
		switch v.Num {
		case ReturnTypeAll, ReturnTypeAttributes:
		default:
			return asseterr.New(asseterr.InvalidArgument, "invalid ReturnType value")
		}
	case ReturnLimit:
		if v.Num < ReturnLimitMin || v.Num > ReturnLimitMax {
			return asseterr.New(asseterr.InvalidArgument, "ReturnLimit out of range")
		}
	case ReturnOrderedBy:
		if !IsLabel(Tag(v.Num)) {
			return asseterr.New(asseterr.InvalidArgument, "ReturnOrderedBy must name a label tag")
		}
	case ConflictResolution:
		switch v.Num {
		case ConflictResolutionOverwrite, ConflictResolutionThrowError:
		default:
			return asseterr.New(asseterr.InvalidArgument, "invalid ConflictResolution value")
		}
	case IsPersistent:
		if v.Bool && perms != nil && !perms.HasPersistencePermission() {
			return asseterr.New(asseterr.PermissionDenied, "IsPersistent=true requires a system permission")
		}
	case UserId:
		if accounts != nil && !accounts.UserIDExists(v.Num) {
			return asseterr.New(asseterr.AccountError, "UserId does not correspond to an OS account")
		}
	case RequirePasswordSet:
		// bool-typed, unconstrained range.
	}
	return nil
}

func checkBytesLen(t Tag, v Value, min, max int) error {
	n := len(v.Bytes)
	if n < min || n > max {
		return asseterr.New(asseterr.InvalidArgument, fmt.Sprintf("tag %s length %d out of range [%d,%d]", t, n, min, max))
	}
	return nil
}

func checkBytesLenExact(t Tag, v Value, want int) error {
	if len(v.Bytes) != want {
		return asseterr.New(asseterr.InvalidArgument, fmt.Sprintf("tag %s must be exactly %d bytes", t, want))
	}
	return nil
}
