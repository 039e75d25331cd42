package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileNameByOwnerType(t *testing.T) {
	tests := []struct {
		name  string
		scope OwnerScope
		want  string
	}{
		{"hap DE", OwnerScope{OwnerType: "Hap", AppID: "com.example.app", AppIndex: 0, Class: DE}, "Hap_com.example.app_0.db"},
		{"hap CE", OwnerScope{OwnerType: "Hap", AppID: "com.example.app", AppIndex: 1, Class: CE}, "enc_Hap_com.example.app_1.db"},
		{"native DE", OwnerScope{OwnerType: "Native", Owner: "some_daemon", Class: DE}, "Native_some_daemon.db"},
		{"group CE", OwnerScope{OwnerType: "Group", DeveloperID: "vendor", GroupID: "shared1", Class: CE}, "enc_Group_vendor_shared1.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.FileName())
		})
	}
}

func TestBackupFileNameAppendsSuffix(t *testing.T) {
	scope := OwnerScope{OwnerType: "Native", Owner: "proc", Class: DE}
	assert.Equal(t, scope.FileName()+".backup", scope.BackupFileName())
}
