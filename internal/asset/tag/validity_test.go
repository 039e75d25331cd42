package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeAccounts struct{ exists bool }

func (f fakeAccounts) UserIDExists(uint32) bool { return f.exists }

type fakePerms struct {
	persistence bool
	clone       bool
	groupOwner  bool
}

func (f fakePerms) HasPersistencePermission() bool { return f.persistence }
func (f fakePerms) IsClone() bool                  { return f.clone }
func (f fakePerms) IsGroupOwner() bool             { return f.groupOwner }

func TestCheckValidityRejectsDisallowedTag(t *testing.T) {
	asset := Asset{Alias: BytesValue([]byte("a"))}
	err := CheckValidity(asset, []Tag{Secret}, nil, fakeAccounts{true}, fakePerms{})
	assert.Error(t, err)
}

func TestCheckValidityRejectsMissingRequiredTag(t *testing.T) {
	asset := Asset{}
	err := CheckValidity(asset, []Tag{Secret}, []Tag{Secret}, fakeAccounts{true}, fakePerms{})
	assert.Error(t, err)
}

func TestCheckValidityEnforcesSecretLengthBounds(t *testing.T) {
	tooLong := make([]byte, SecretMaxLen+1)
	asset := Asset{Secret: BytesValue(tooLong)}
	err := CheckValidity(asset, []Tag{Secret}, nil, fakeAccounts{true}, fakePerms{})
	assert.Error(t, err)
}

func TestCheckValidityRejectsIsPersistentWithoutPermission(t *testing.T) {
	asset := Asset{IsPersistent: BoolValue(true)}
	err := CheckValidity(asset, []Tag{IsPersistent}, nil, fakeAccounts{true}, fakePerms{persistence: false})
	assert.Error(t, err)

	err = CheckValidity(asset, []Tag{IsPersistent}, nil, fakeAccounts{true}, fakePerms{persistence: true})
	assert.NoError(t, err)
}

func TestCheckValidityRejectsTrustedAccountSyncForClones(t *testing.T) {
	asset := Asset{SyncType: NumberValue(SyncTypeTrustedAccount)}
	err := CheckValidity(asset, []Tag{SyncType}, nil, fakeAccounts{true}, fakePerms{clone: true})
	assert.Error(t, err)
}

func TestCheckValidityRejectsUnknownUserId(t *testing.T) {
	asset := Asset{UserId: NumberValue(42)}
	err := CheckValidity(asset, []Tag{UserId}, nil, fakeAccounts{exists: false}, fakePerms{})
	assert.Error(t, err)
}

func TestCheckValidityRejectsWrongValueType(t *testing.T) {
	// Secret is TypeBytes; feeding it a bool value must be rejected even
	// though the tag itself is allowed.
	asset := Asset{Secret: BoolValue(true)}
	err := CheckValidity(asset, []Tag{Secret}, nil, fakeAccounts{true}, fakePerms{})
	assert.Error(t, err)
}
