// Package pipeline implements the request pipeline (C7): for each of the
// six public operations, resolve identity, validate attributes, check
// permissions, compute the target store, execute under the store's lock,
// and notify the plugin — the skeleton of spec.md §4.6.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/identity"
	"github.com/assetsvc/assetsvc/internal/asset/keymgr"
	"github.com/assetsvc/assetsvc/internal/asset/plugin"
	"github.com/assetsvc/assetsvc/internal/asset/session"
	"github.com/assetsvc/assetsvc/internal/asset/store"
	"github.com/assetsvc/assetsvc/internal/asset/tag"
	"github.com/assetsvc/assetsvc/internal/telemetry"
)

// CurrentVersion is the row schema version new writes are stamped with,
// per §3.2/§4.6's version auto-upgrade rule.
const CurrentVersion = 1

// SystemAccountMaxUserID is the inclusive upper bound of "system account"
// user ids, which may only use Accessibility=DevicePowerOn, per §4.6.
const SystemAccountMaxUserID = 99

// Pipeline wires C1 (tag), C2 (store), C3 (keymgr), C4 (crypto),
// C5 (session), C6 (identity) and the plugin notifier into the six public
// operations.
type Pipeline struct {
	Registry   *store.Registry
	KeyMgr     *keymgr.Manager
	Sessions   *session.Table
	Notifier   plugin.Notifier
	Permissions Permissions
	Accounts   AccountService
}

// New constructs a Pipeline. notifier may be plugin.Noop{} when no plugin
// is configured.
func New(registry *store.Registry, km *keymgr.Manager, sessions *session.Table, notifier plugin.Notifier, perms Permissions, accounts AccountService) *Pipeline {
	if notifier == nil {
		notifier = plugin.Noop{}
	}
	return &Pipeline{
		Registry:    registry,
		KeyMgr:      km,
		Sessions:    sessions,
		Notifier:    notifier,
		Permissions: perms,
		Accounts:    accounts,
	}
}

// resolveIdentity is step 1 of §4.6's skeleton.
func (p *Pipeline) resolveIdentity(ctx context.Context, caller identity.IPCCaller, req tag.Asset) (identity.CallingInfo, error) {
	var specifiedUserID *uint32
	if v, ok := req[tag.UserId]; ok {
		specifiedUserID = &v.Num
	}
	return identity.Resolve(ctx, caller, specifiedUserID, permAdapter{perms: p.Permissions, caller: caller})
}

// checkerPair bundles the two validators §4.1 needs, built once per
// request from the resolved identity.
func (p *Pipeline) checkerPair(caller identity.IPCCaller, info identity.CallingInfo) (tag.AccountChecker, tag.PermissionChecker) {
	return accountAdapter{accounts: p.Accounts}, permAdapter{perms: p.Permissions, caller: caller, info: info}
}

// ownerScope derives C2's OwnerScope from a resolved CallingInfo and the
// accessibility this row is being stored/queried under. The DE/CE split
// follows DeviceUnlocked rows into credential-encrypted storage, and
// everything else (DevicePowerOn, DeviceFirstUnlocked) into
// device-encrypted storage — a mapping this service introduces since the
// core spec leaves protection-class selection as a deployment detail of
// §3.3, documented in DESIGN.md.
func ownerScope(info identity.CallingInfo, accessibility uint32) store.OwnerScope {
	class := store.DE
	if accessibility == tag.AccessibilityDeviceUnlocked {
		class = store.CE
	}

	switch info.OwnerType {
	case identity.OwnerHapGroup:
		return store.OwnerScope{
			OwnerType:   "Group",
			DeveloperID: info.Group.DeveloperID,
			GroupID:     info.Group.GroupID,
			Class:       class,
		}
	case identity.OwnerHap:
		return store.OwnerScope{
			OwnerType: "Hap",
			AppID:     info.OwnerID(),
			AppIndex:  info.AppIndex(),
			Class:     class,
		}
	default:
		return store.OwnerScope{
			OwnerType: "Native",
			Owner:     string(info.OwnerInfo),
			Class:     class,
		}
	}
}

// storePath resolves the on-disk path for info's store under accessibility,
// per §6.3's "/data/.../<user>/<owner-scope-name>.db" layout.
func (p *Pipeline) storePath(info identity.CallingInfo, accessibility uint32) string {
	scope := ownerScope(info, accessibility)
	return filepath.Join(p.Registry.DataDir(), strconv.Itoa(int(info.UserID)), scope.FileName())
}

// owner returns the string used as the store row's Owner column and the
// key alias's owner component: the IPC owner bytes for Hap/Native, or the
// group's composite id for HapGroup.
func owner(info identity.CallingInfo) string {
	if info.Group != nil {
		return info.Group.DeveloperID + "_" + info.Group.GroupID
	}
	return string(info.OwnerInfo)
}

// ownerTypeCode maps identity.OwnerType onto the row's OwnerType column.
func ownerTypeCode(t identity.OwnerType) int { return int(t) }

// keyAlias builds C3's deterministic alias for one row, per §3.4/§4.3.
func keyAlias(info identity.CallingInfo, authType, accessibility uint32) keymgr.Alias {
	return keymgr.Alias{
		UserID:        info.UserID,
		Owner:         owner(info),
		AuthType:      authType,
		Accessibility: accessibility,
	}
}

func nowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// checkSystemAccountAccessibility enforces §4.6: "System accounts
// (user id ≤ 99) may use only Accessibility=DevicePowerOn."
func checkSystemAccountAccessibility(userID int32, accessibility uint32) error {
	if userID >= 0 && userID <= SystemAccountMaxUserID && accessibility != tag.AccessibilityDevicePowerOn {
		return asseterr.New(asseterr.InvalidArgument, fmt.Sprintf("system account %d may only use Accessibility=DevicePowerOn", userID))
	}
	return nil
}

// notify delegates to the plugin, logging but never surfacing plugin
// errors to the caller, per §4.11 ("Plugin error: never fail the
// caller's request due to plugin error").
func (p *Pipeline) notify(ctx context.Context, n plugin.Notification) {
	telemetry.PipelineOperationsTotal.WithLabelValues(n.Fields["op"], "ok").Inc()
	if _, err := p.Notifier.Notify(ctx, n); err != nil {
		slog.Default().Warn("plugin notification failed", "op", n.Fields["op"], "error", err)
	}
}
