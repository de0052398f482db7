package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/autobond/internal/models"
)

func TestParseUsers(t *testing.T) {
	creds, err := ParseUsers("a1:p1, a2:p2")
	require.NoError(t, err)
	assert.Equal(t, []models.UserCredential{
		{Account: "a1", Password: "p1"},
		{Account: "a2", Password: "p2"},
	}, creds)
}

func TestParseUsers_PasswordMayContainColon(t *testing.T) {
	creds, err := ParseUsers("a1:p:1,")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "p:1", creds[0].Password)
}

func TestParseUsers_Rejects(t *testing.T) {
	for _, users := range []string{"", "   ", ",,", "a1-p1", "a1:p1,a2", ":p1", "a1:"} {
		_, err := ParseUsers(users)
		assert.ErrorIs(t, err, models.ErrConfiguration, "%q", users)
	}
}

func TestParseUsers_ErrorDoesNotLeakPassword(t *testing.T) {
	_, err := ParseUsers("880012345678:")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "880012345678")
	assert.Contains(t, err.Error(), "5678")
}
