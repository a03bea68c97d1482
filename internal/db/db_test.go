package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/models"
)

func TestInitSQLiteMigrates(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "replies.db")}

	gdb, err := Init(cfg)
	require.NoError(t, err)

	for _, table := range []interface{}{&models.ReplyRecord{}, &models.ReplyJob{}, &models.ReplyLog{}, &models.FetchCursor{}} {
		assert.True(t, gdb.Migrator().HasTable(table))
	}

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestInitRejectsUnknownDriver(t *testing.T) {
	_, err := Init(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
