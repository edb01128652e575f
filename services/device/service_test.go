package device

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/shield/testutils"
)

func TestService_Initialize(t *testing.T) {
	db := testutils.SetupTestDB(t, &Identity{})
	service := NewService(db, nil)

	t.Run("empty candidate creates a new identity", func(t *testing.T) {
		identity, err := service.Initialize("", "Chrome on Linux (desktop)")
		require.NoError(t, err)

		assert.NotEmpty(t, identity.ID)
		_, parseErr := uuid.Parse(identity.ID)
		assert.NoError(t, parseErr)
		assert.Equal(t, TrustPending, identity.Status)
		assert.Equal(t, "Chrome on Linux (desktop)", identity.Summary)
	})

	t.Run("known candidate wins and is touched", func(t *testing.T) {
		created, err := service.Initialize("", "Chrome on Linux (desktop)")
		require.NoError(t, err)

		reconciled, err := service.Initialize(created.ID, "Firefox on Linux (desktop)")
		require.NoError(t, err)

		assert.Equal(t, created.ID, reconciled.ID)
		assert.Equal(t, "Firefox on Linux (desktop)", reconciled.Summary)
		assert.False(t, reconciled.LastSeen.Before(created.LastSeen))
	})

	t.Run("well-formed unknown candidate is adopted", func(t *testing.T) {
		candidate := uuid.New().String()

		identity, err := service.Initialize(candidate, "summary")
		require.NoError(t, err)

		assert.Equal(t, candidate, identity.ID)
		assert.Equal(t, TrustPending, identity.Status)

		var stored Identity
		require.NoError(t, db.Where("id = ?", candidate).First(&stored).Error)
	})

	t.Run("malformed candidate is replaced", func(t *testing.T) {
		identity, err := service.Initialize("definitely-not-a-uuid", "summary")
		require.NoError(t, err)

		assert.NotEqual(t, "definitely-not-a-uuid", identity.ID)
		_, parseErr := uuid.Parse(identity.ID)
		assert.NoError(t, parseErr)
	})
}

func TestService_Verify(t *testing.T) {
	db := testutils.SetupTestDB(t, &Identity{})
	service := NewService(db, nil)

	identity, err := service.Initialize("", "summary")
	require.NoError(t, err)

	assert.True(t, service.Verify(identity.ID))
	assert.False(t, service.Verify(uuid.New().String()))
	assert.False(t, service.Verify(""))
}

func TestService_AttachUser(t *testing.T) {
	db := testutils.SetupTestDB(t, &Identity{})
	service := NewService(db, nil)

	t.Run("marks the device active for the user", func(t *testing.T) {
		identity, err := service.Initialize("", "summary")
		require.NoError(t, err)

		require.NoError(t, service.AttachUser(identity.ID, 42))

		stored, err := service.Get(identity.ID)
		require.NoError(t, err)
		assert.Equal(t, TrustActive, stored.Status)
		assert.Equal(t, uint(42), stored.UserID)
	})

	t.Run("unknown device", func(t *testing.T) {
		err := service.AttachUser(uuid.New().String(), 42)
		assert.ErrorIs(t, err, ErrDeviceNotFound)
	})
}

func TestService_IsTrusted(t *testing.T) {
	db := testutils.SetupTestDB(t, &Identity{})
	service := NewService(db, nil)

	identity, err := service.Initialize("", "summary")
	require.NoError(t, err)

	t.Run("pending device is not trusted", func(t *testing.T) {
		assert.False(t, service.IsTrusted(identity.ID, 42))
	})

	t.Run("attached device is trusted for its user only", func(t *testing.T) {
		require.NoError(t, service.AttachUser(identity.ID, 42))

		assert.True(t, service.IsTrusted(identity.ID, 42))
		assert.False(t, service.IsTrusted(identity.ID, 99))
	})

	t.Run("revoked device is not trusted", func(t *testing.T) {
		require.NoError(t, service.Revoke(identity.ID))
		assert.False(t, service.IsTrusted(identity.ID, 42))
	})

	t.Run("unknown device is not trusted", func(t *testing.T) {
		assert.False(t, service.IsTrusted(uuid.New().String(), 42))
	})
}
