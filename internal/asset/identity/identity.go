// Package identity resolves the caller of an asset-service request into a
// CallingInfo, the identity under which every storage and key operation is
// scoped. Adapted from the teacher's request-scoped auth.Identity /
// auth.FromContext pattern (internal/auth/middleware.go in the teacher
// repo), replaced here with IPC-caller-plus-tag resolution since this
// service has no bearer-token transport.
package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// OwnerType categorizes the caller's ownership scope, per §3.3/§4.7.
type OwnerType int

const (
	OwnerHap OwnerType = iota
	OwnerHapGroup
	OwnerNative
)

func (o OwnerType) String() string {
	switch o {
	case OwnerHap:
		return "Hap"
	case OwnerHapGroup:
		return "HapGroup"
	case OwnerNative:
		return "Native"
	default:
		return "Unknown"
	}
}

// GroupRef names a shared group owner: a developer id (dotted prefix
// stripped) plus a group id.
type GroupRef struct {
	DeveloperID string
	GroupID     string
}

// CallingInfo is the resolved identity of the caller of a request, per §4.7.
type CallingInfo struct {
	UserID    int32
	OwnerType OwnerType
	OwnerInfo []byte
	Group     *GroupRef
}

// AppIndex parses the trailing "_<index>" suffix from Hap/HapGroup owner
// bytes, mirroring the original CallingInfo::app_index.
func (c CallingInfo) AppIndex() uint32 {
	if c.OwnerType == OwnerNative {
		return 0
	}
	parts := strings.Split(string(c.OwnerInfo), "_")
	if len(parts) == 0 {
		return 0
	}
	n, err := strconv.ParseUint(parts[len(parts)-1], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// OwnerID returns the owner-bytes prefix with the trailing "_<index>" (Hap)
// or "_<uid>" (Native) suffix stripped — the bare app id or process name.
// The pipeline uses it to name Hap store files (store.OwnerScope); Native
// store files carry the full owner bytes.
func (c CallingInfo) OwnerID() string {
	s := string(c.OwnerInfo)
	i := strings.LastIndexByte(s, '_')
	if i < 0 {
		return s
	}
	return s[:i]
}

// HapInfo describes an app-sandboxed caller.
type HapInfo struct {
	AppID       string
	AppIndex    uint32
	DeveloperID *string
	GroupID     *string
}

// NativeInfo describes a native-process caller.
type NativeInfo struct {
	ProcessName string
	UID         uint32
}

// IPCCaller is the identity the transport layer extracts from the
// underlying IPC context (out of scope per §1; here it is whatever the
// transport adapter constructs from its own caller credentials).
type IPCCaller struct {
	UserID  uint32
	Hap     *HapInfo
	Native  *NativeInfo
}

// PermissionChecker reports whether the caller may override the IPC-derived
// user id with an explicit UserId tag.
type PermissionChecker interface {
	HasCrossUserPermission() bool
}

// Resolve builds a CallingInfo from the IPC caller and an optional
// specified-user override, exactly per §4.7: the override only applies
// when the caller holds the cross-user permission.
func Resolve(ctx context.Context, caller IPCCaller, specifiedUserID *uint32, perm PermissionChecker) (CallingInfo, error) {
	userID := caller.UserID
	if specifiedUserID != nil {
		if perm == nil || !perm.HasCrossUserPermission() {
			return CallingInfo{}, asseterr.New(asseterr.PermissionDenied, "specifying another user's UserId requires the cross-user permission")
		}
		userID = *specifiedUserID
	}

	switch {
	case caller.Hap != nil:
		ownerInfo := []byte(fmt.Sprintf("%s_%d", caller.Hap.AppID, caller.Hap.AppIndex))
		var group *GroupRef
		ot := OwnerHap
		if caller.Hap.DeveloperID != nil && caller.Hap.GroupID != nil {
			group = &GroupRef{
				DeveloperID: stripDottedPrefix(*caller.Hap.DeveloperID),
				GroupID:     *caller.Hap.GroupID,
			}
			ot = OwnerHapGroup
		}
		return CallingInfo{UserID: int32(userID), OwnerType: ot, OwnerInfo: ownerInfo, Group: group}, nil

	case caller.Native != nil:
		ownerInfo := []byte(fmt.Sprintf("%s_%d", caller.Native.ProcessName, caller.Native.UID))
		return CallingInfo{UserID: int32(userID), OwnerType: OwnerNative, OwnerInfo: ownerInfo}, nil

	default:
		return CallingInfo{}, asseterr.New(asseterr.InvalidArgument, "IPC caller carries neither Hap nor Native process info")
	}
}

// stripDottedPrefix removes everything up to and including the last '.',
// matching the original's developer-id normalization.
func stripDottedPrefix(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

type ctxKey struct{}

// NewContext attaches info to ctx.
func NewContext(ctx context.Context, info CallingInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext retrieves the CallingInfo attached by NewContext, if any.
func FromContext(ctx context.Context) (CallingInfo, bool) {
	info, ok := ctx.Value(ctxKey{}).(CallingInfo)
	return info, ok
}
