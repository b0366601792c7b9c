package service

import (
	"testing"

	"lingua_learn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	registered, err := env.Auth.Register(RegisterRequest{
		Name:     "wen",
		Email:    "wen@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, 1, registered.User.Level)

	// 重复邮箱
	_, err = env.Auth.Register(RegisterRequest{
		Name:     "wen2",
		Email:    "wen@example.com",
		Password: "secret456",
	})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)

	loggedIn, err := env.Auth.Login(LoginRequest{Email: "wen@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, loggedIn.Token)

	claims, err := util.ParseJWT(loggedIn.Token, env.Config.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, loggedIn.User.ID, claims.UserID)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Auth.Register(RegisterRequest{
		Name:     "xia",
		Email:    "xia@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	_, err = env.Auth.Login(LoginRequest{Email: "xia@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, util.ErrUserNotFound)

	_, err = env.Auth.Login(LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}
