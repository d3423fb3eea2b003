package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/autolaku_server/internal/testutil"
)

func TestUserRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	_ = NewUserRepository(db)

	email := "test@example.com"
	user := testutil.TestUser(t, db, testutil.WithEmail(email))

	assert.NotZero(t, user.ID)
	assert.Equal(t, email, *user.Email)
	assert.False(t, user.IsActive)
	assert.Zero(t, user.LicenseQuota)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	email := "unique@example.com"
	testutil.TestUser(t, db, testutil.WithEmail(email))

	found, err := repo.GetByEmail(email)
	require.NoError(t, err)
	assert.Equal(t, email, *found.Email)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	_, err := repo.GetByID(99999)
	assert.Error(t, err)
}

func TestUserRepository_UpdateFields_Activation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db)

	err := repo.UpdateFields(user.ID, map[string]interface{}{
		"is_active":     true,
		"license_quota": 5,
	})
	require.NoError(t, err)

	updated, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, 5, updated.LicenseQuota)
}

func TestUserRepository_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db)

	require.NoError(t, repo.Delete(user.ID))

	_, err := repo.GetByID(user.ID)
	assert.Error(t, err)
}

func TestUserRepository_ExistsByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	email := "exists@example.com"
	testutil.TestUser(t, db, testutil.WithEmail(email))

	exists, err := repo.ExistsByEmail(email)
	require.NoError(t, err)
	assert.True(t, exists)

	notExists, err := repo.ExistsByEmail("notexists@example.com")
	require.NoError(t, err)
	assert.False(t, notExists)
}
