package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/models"
)

func TestAutoMigrateCreatesDomainTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	tables := []interface{}{
		&models.User{},
		&models.Token{},
		&models.Unit{},
		&models.Lesson{},
		&models.GroupMessage{},
		&models.CacheEntry{},
	}
	for _, table := range tables {
		require.True(t, migrator.HasTable(table), "expected table for %T", table)
	}
	require.True(t, migrator.HasIndex(&models.Token{}, "idx_tokens_user_device"))
}

func TestSeedDataIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))
	require.NoError(t, SeedData(db))

	var count int64
	require.NoError(t, db.Model(&models.Package{}).Count(&count).Error)
	require.EqualValues(t, 3, count)
}
