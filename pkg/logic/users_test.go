package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/auth"
)

func TestUsersTokens(t *testing.T) {
	f := newFixture(t)

	user, err := f.l.Users.Add(f.ctx, "newbie", "newbie@example.com", false)
	require.NoError(t, err)
	assert.NotEmpty(t, user.APILogin)

	_, err = f.l.Users.Add(f.ctx, "newbie", "", false)
	assert.True(t, IsCode(err, CodeDuplicate))

	token, err := f.l.Users.GenerateToken(f.ctx, user, time.Hour)
	require.NoError(t, err)

	got, err := f.l.Users.Authenticate(f.ctx, user.APILogin, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.l.Users.Authenticate(f.ctx, user.APILogin, "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.True(t, IsAuthError(err))

	_, err = f.l.Users.Authenticate(f.ctx, "nobody", token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.l.Users.Authenticate(f.ctx, user.APILogin, token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestUsersGroups(t *testing.T) {
	f := newFixture(t)

	group, err := f.l.Users.AddGroup(f.ctx, "devs", "")
	require.NoError(t, err)
	assert.Equal(t, f.group.ID, group.ID)

	qa, err := f.l.Users.AddGroup(f.ctx, "qa", "")
	require.NoError(t, err)
	assert.Equal(t, "qa", qa.FASName)

	require.NoError(t, f.l.Users.JoinGroup(f.ctx, f.u3, qa))
	require.NoError(t, f.l.Users.JoinGroup(f.ctx, f.u3, qa))

	stored, err := f.l.Users.Get(f.ctx, "user3")
	require.NoError(t, err)
	assert.Equal(t, []int64{qa.ID}, stored.GroupIDs)

	require.NoError(t, f.l.Users.SetAdmin(f.ctx, stored, true))
	stored, err = f.l.Users.GetByID(f.ctx, stored.ID)
	require.NoError(t, err)
	assert.True(t, stored.Admin)
}
