package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditionBuildEmptyIsTautology(t *testing.T) {
	clause, args := NewCondition().build()
	assert.Equal(t, "1=1", clause)
	assert.Empty(t, args)
}

func TestConditionBuildOrdersColumnsDeterministically(t *testing.T) {
	cond := NewCondition().And("owner", "com.example.app").And("alias", "a1")
	clause, args := cond.build()

	assert.Equal(t, "alias = ? AND owner = ?", clause)
	assert.Equal(t, []any{"a1", "com.example.app"}, args)
}

func TestConditionBuildAppendsRawSuffix(t *testing.T) {
	cond := NewCondition().And("owner", "com.example.app")
	cond.RawSuffix = "AND sync_status = 0"
	clause, _ := cond.build()

	assert.Equal(t, "owner = ? AND sync_status = 0", clause)
}
