package services

import (
	"testing"
	"time"

	"github.com/GrainArc/RasterImport/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthResolve(t *testing.T) {
	db := newTestDB(t)
	user, _ := seed(t, db)
	auth := NewAuthService(db, "secret")

	token, err := auth.Sign(user, time.Hour)
	require.NoError(t, err)
	got, err := auth.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = auth.Resolve("")
	assert.ErrorIs(t, err, ErrUnauthorized)

	other := NewAuthService(db, "another-secret")
	_, err = other.Resolve(token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  user.ID,
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.Resolve(expired)
	assert.ErrorIs(t, err, ErrUnauthorized)

	ghost, err := auth.Sign(&models.User{ID: 404, Username: "ghost"}, time.Hour)
	require.NoError(t, err)
	_, err = auth.Resolve(ghost)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthRejectsOtherAlgorithms(t *testing.T) {
	db := newTestDB(t)
	user, _ := seed(t, db)
	auth := NewAuthService(db, "secret")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"id": user.ID}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.Resolve(token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": user.ID}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Resolve(none)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClaimID(t *testing.T) {
	id, err := claimID(float64(12))
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	id, err = claimID("13")
	require.NoError(t, err)
	assert.Equal(t, int64(13), id)
	_, err = claimID(nil)
	assert.Error(t, err)
	_, err = claimID(true)
	assert.Error(t, err)
}
