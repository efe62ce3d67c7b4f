package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTestModeFollowsEnv(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(testModeEnv, "yes")
	RefreshTestMode()
	assert.False(t, InTestMode(), "only the literal \"1\" enables test mode")

	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
