package twofactor

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/testutils"
)

func getTestTwoFactorConfig() *config.Config {
	return &config.Config{
		TwoFactor: config.TwoFactorConfig{
			Enabled: true,
			Issuer:  "Test App",
		},
	}
}

func currentCode(t *testing.T, secret string) string {
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func TestService_GenerateSecret(t *testing.T) {
	t.Run("creates a pending secret", func(t *testing.T) {
		db := testutils.SetupTestDB(t, &Secret{}, &UsedCode{})
		service := NewService(getTestTwoFactorConfig(), db, nil)

		secret, url, err := service.GenerateSecret(1, "clinician@example.com")
		require.NoError(t, err)

		assert.NotEmpty(t, secret.Secret)
		assert.False(t, secret.Enabled)
		assert.Contains(t, url, "otpauth://totp/")
		assert.Contains(t, url, "Test%20App")
	})

	t.Run("re-enrollment before verification replaces the secret", func(t *testing.T) {
		db := testutils.SetupTestDB(t, &Secret{}, &UsedCode{})
		service := NewService(getTestTwoFactorConfig(), db, nil)

		first, _, err := service.GenerateSecret(1, "clinician@example.com")
		require.NoError(t, err)

		second, _, err := service.GenerateSecret(1, "clinician@example.com")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.NotEqual(t, first.Secret, second.Secret)

		var count int64
		require.NoError(t, db.Model(&Secret{}).Where("user_id = ?", 1).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("enrolled user cannot re-enroll", func(t *testing.T) {
		db := testutils.SetupTestDB(t, &Secret{}, &UsedCode{})
		service := NewService(getTestTwoFactorConfig(), db, nil)

		secret, _, err := service.GenerateSecret(1, "clinician@example.com")
		require.NoError(t, err)
		require.NoError(t, service.Enable(1, currentCode(t, secret.Secret)))

		_, _, err = service.GenerateSecret(1, "clinician@example.com")
		assert.ErrorIs(t, err, ErrSecretExists)
	})

	t.Run("disabled feature", func(t *testing.T) {
		db := testutils.SetupTestDB(t, &Secret{}, &UsedCode{})
		cfg := getTestTwoFactorConfig()
		cfg.TwoFactor.Enabled = false
		service := NewService(cfg, db, nil)

		_, _, err := service.GenerateSecret(1, "clinician@example.com")
		assert.ErrorIs(t, err, ErrDisabled)
	})
}

func TestService_Enable(t *testing.T) {
	db := testutils.SetupTestDB(t, &Secret{}, &UsedCode{})
	service := NewService(getTestTwoFactorConfig(), db, nil)

	secret, _, err := service.GenerateSecret(1, "clinician@example.com")
	require.NoError(t, err)

	t.Run("wrong code keeps enrollment pending", func(t *testing.T) {
		assert.ErrorIs(t, service.Enable(1, "000000"), ErrInvalidCode)
		assert.False(t, service.Enrolled(1))
	})

	t.Run("valid first code completes enrollment", func(t *testing.T) {
		require.NoError(t, service.Enable(1, currentCode(t, secret.Secret)))
		assert.True(t, service.Enrolled(1))
	})

	t.Run("no secret", func(t *testing.T) {
		assert.ErrorIs(t, service.Enable(99, "123456"), ErrSecretNotFound)
	})
}

func TestService_Verify(t *testing.T) {
	db := testutils.SetupTestDB(t, &Secret{}, &UsedCode{})
	service := NewService(getTestTwoFactorConfig(), db, nil)

	secret, _, err := service.GenerateSecret(1, "clinician@example.com")
	require.NoError(t, err)
	require.NoError(t, service.Enable(1, currentCode(t, secret.Secret)))

	t.Run("pending enrollment cannot verify", func(t *testing.T) {
		_, _, err := service.GenerateSecret(2, "other@example.com")
		require.NoError(t, err)

		assert.ErrorIs(t, service.Verify(2, "123456"), ErrNotEnrolled)
	})

	t.Run("invalid code", func(t *testing.T) {
		assert.ErrorIs(t, service.Verify(1, "000000"), ErrInvalidCode)
	})

	t.Run("replayed code is rejected", func(t *testing.T) {
		code := currentCode(t, secret.Secret)

		require.NoError(t, service.Verify(1, code))
		assert.ErrorIs(t, service.Verify(1, code), ErrCodeReplayed)
	})

	t.Run("stale used codes are pruned", func(t *testing.T) {
		service.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
		defer func() { service.now = time.Now }()

		require.NoError(t, service.consumeCode(1, "777777"))

		var count int64
		require.NoError(t, db.Model(&UsedCode{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestService_Disable(t *testing.T) {
	db := testutils.SetupTestDB(t, &Secret{}, &UsedCode{})
	service := NewService(getTestTwoFactorConfig(), db, nil)

	secret, _, err := service.GenerateSecret(1, "clinician@example.com")
	require.NoError(t, err)
	require.NoError(t, service.Enable(1, currentCode(t, secret.Secret)))

	require.NoError(t, service.Disable(1))
	assert.False(t, service.Enrolled(1))

	assert.ErrorIs(t, service.Disable(1), ErrSecretNotFound)
}
