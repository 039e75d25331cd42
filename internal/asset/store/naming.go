package store

import "fmt"

// ProtectionClass selects between device-encrypted (available after first
// boot) and credential-encrypted (available only after user unlock)
// storage, per §3.3.
type ProtectionClass int

const (
	DE ProtectionClass = iota
	CE
)

// OwnerScope names one physical store file within a user's directory, per
// §3.3's naming rule.
type OwnerScope struct {
	OwnerType string // "Hap", "Native", "Group"
	AppID     string // Hap
	AppIndex  uint32 // Hap
	Owner     string // Native
	DeveloperID string // Group
	GroupID     string // Group
	Class     ProtectionClass
}

// FileName returns the store file's base name, e.g. "Hap_com.foo_0.db" or
// "enc_Native_proc_1000.db".
func (o OwnerScope) FileName() string {
	var base string
	switch o.OwnerType {
	case "Hap":
		base = fmt.Sprintf("Hap_%s_%d.db", o.AppID, o.AppIndex)
	case "Native":
		base = fmt.Sprintf("Native_%s.db", o.Owner)
	case "Group":
		base = fmt.Sprintf("Group_%s_%s.db", o.DeveloperID, o.GroupID)
	default:
		base = fmt.Sprintf("Unknown_%s.db", o.Owner)
	}
	if o.Class == CE {
		return "enc_" + base
	}
	return base
}

// BackupFileName returns the shadow backup copy's file name.
func (o OwnerScope) BackupFileName() string {
	return o.FileName() + ".backup"
}
