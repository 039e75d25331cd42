// Package plugin declares the contract for the opaque external
// collaborator that receives event notifications and may redirect
// sync/cloud operations (§1, §6.5). It is interface-only: the actual
// cloud/sync implementation is out of scope.
package plugin

import "context"

// EventType enumerates the notifications the reactor may deliver, per §6.5.
type EventType int

const (
	Sync EventType = iota
	CleanCloudFlag
	DeleteCloudData
	OnDeviceUpgrade
	OnAppRestore
	OnUserUnlocked
	OnAppCall
	OnPackageClear
	OnUserRemoved
	QuerySyncResultEvent
)

func (e EventType) String() string {
	switch e {
	case Sync:
		return "Sync"
	case CleanCloudFlag:
		return "CleanCloudFlag"
	case DeleteCloudData:
		return "DeleteCloudData"
	case OnDeviceUpgrade:
		return "OnDeviceUpgrade"
	case OnAppRestore:
		return "OnAppRestore"
	case OnUserUnlocked:
		return "OnUserUnlocked"
	case OnAppCall:
		return "OnAppCall"
	case OnPackageClear:
		return "OnPackageClear"
	case OnUserRemoved:
		return "OnUserRemoved"
	case QuerySyncResultEvent:
		return "QuerySyncResult"
	default:
		return "Unknown"
	}
}

// Notification carries one event to the plugin, keyed by arbitrary string
// fields since the concrete payload shape is owned by the external plugin,
// not this service.
type Notification struct {
	Type   EventType
	Fields map[string]string
}

// SyncResult is the plugin's answer to QuerySyncResult, per §6.1.
type SyncResult struct {
	ResultCode  int32
	TotalCount  uint32
	FailedCount uint32
}

// Notifier is implemented by the external plugin. Notify's status is a
// non-zero-is-non-fatal code per §6.5: the reactor must never fail the
// caller's request solely because the plugin returned non-zero, except for
// QuerySyncResult where the plugin is the sole implementer (§4.11).
type Notifier interface {
	Notify(ctx context.Context, n Notification) (status uint32, err error)
	QuerySyncResult(ctx context.Context, userID int32, owner string) (SyncResult, error)
}

// Noop is a Notifier that does nothing, used when no plugin is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Notification) (uint32, error) { return 0, nil }

func (Noop) QuerySyncResult(context.Context, int32, string) (SyncResult, error) {
	return SyncResult{}, nil
}
