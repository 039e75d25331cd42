package store

import (
	"sort"
	"strconv"
	"strings"
)

// LocalStatus and SyncStatus encode §3.2's row-level sync bookkeeping.
type LocalStatus int

const (
	Local LocalStatus = iota
	Cloud
)

type SyncStatus int

const (
	NoNeedSync SyncStatus = iota
	SyncAdd
	SyncDel
	SyncUpdate
)

// Row is one physical asset record, matching §3.2 exactly. Secret is always
// ciphertext; callers never see plaintext at this layer.
type Row struct {
	ID                 int64
	Secret             []byte
	Alias              string
	Owner              string
	OwnerType          int
	GroupID            []byte
	SyncType           uint32
	Accessibility      uint32
	AuthType           uint32
	RequirePasswordSet bool
	IsPersistent       bool
	CreateTime         string // milliseconds, decimal string
	UpdateTime         string
	Version            int
	LocalStatus        LocalStatus
	SyncStatus         SyncStatus
	WrapType           uint32
	Critical           [4][]byte
	Normal             [4][]byte
	NormalLocal        [4][]byte
	DeleteType         int
}

// CanonicalAAD serializes r's non-secret columns, ordered by column name,
// for use as AEAD associated data (§4.4). Both C2 write paths and C4 must
// agree on this exact layout.
func (r Row) CanonicalAAD() []byte {
	cols := map[string]string{
		"accessibility":         strconv.FormatUint(uint64(r.Accessibility), 10),
		"alias":                 r.Alias,
		"auth_type":             strconv.FormatUint(uint64(r.AuthType), 10),
		"create_time":           r.CreateTime,
		"critical1":             string(r.Critical[0]),
		"critical2":             string(r.Critical[1]),
		"critical3":             string(r.Critical[2]),
		"critical4":             string(r.Critical[3]),
		"delete_type":           strconv.Itoa(r.DeleteType),
		"group_id":              string(r.GroupID),
		"is_persistent":         strconv.FormatBool(r.IsPersistent),
		"local_status":          strconv.Itoa(int(r.LocalStatus)),
		"normal1":               string(r.Normal[0]),
		"normal2":               string(r.Normal[1]),
		"normal3":               string(r.Normal[2]),
		"normal4":               string(r.Normal[3]),
		"normal_local1":         string(r.NormalLocal[0]),
		"normal_local2":         string(r.NormalLocal[1]),
		"normal_local3":         string(r.NormalLocal[2]),
		"normal_local4":         string(r.NormalLocal[3]),
		"owner":                 r.Owner,
		"owner_type":            strconv.Itoa(r.OwnerType),
		"require_password_set":  strconv.FormatBool(r.RequirePasswordSet),
		"sync_status":           strconv.Itoa(int(r.SyncStatus)),
		"sync_type":             strconv.FormatUint(uint64(r.SyncType), 10),
		"update_time":           r.UpdateTime,
		"version":               strconv.Itoa(r.Version),
		"wrap_type":             strconv.FormatUint(uint64(r.WrapType), 10),
	}

	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(cols[n])
		b.WriteByte(';')
	}
	return []byte(b.String())
}
