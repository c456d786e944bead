package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/pkg/db/models"
	"github.com/miuvuu/miuvuu-backend/pkg/migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrphanTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Run(context.Background(), sqlDB, "sqlite3", "", "up"))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestOrphanRepositoryLifecycle(t *testing.T) {
	db := setupOrphanTestDB(t)
	repo := NewOrphanRepository(db)
	ctx := context.Background()
	productID := uuid.New()

	require.NoError(t, repo.RecordOrphan(ctx, OrphanEntry{
		ProductID: productID,
		Namespace: "Shoe_1",
		URL:       "/uploads/CarpetasDeProductos/Shoe_1/a.webp",
		Reason:    OrphanReasonReplaced,
		Err:       errors.New("permission denied"),
	}))
	require.NoError(t, repo.RecordOrphan(ctx, OrphanEntry{
		URL:    "/uploads/stray.png",
		Reason: OrphanReasonAudit,
	}))

	future := time.Now().Add(time.Minute)
	rows, err := repo.ListPending(ctx, future, 3, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var first models.MediaOrphan
	for _, row := range rows {
		if row.ProductID != nil {
			first = row
		}
	}
	require.NotNil(t, first.ProductID)
	assert.Equal(t, productID, *first.ProductID)
	require.NotNil(t, first.LastError)
	assert.Equal(t, "permission denied", *first.LastError)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.MarkFailed(ctx, first.ID, errors.New("still stuck")))
	}
	rows, err = repo.ListPending(ctx, future, 3, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "row at the attempt cap is no longer pending")

	require.NoError(t, repo.MarkSwept(ctx, rows[0].ID, time.Now()))
	rows, err = repo.ListPending(ctx, future, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOrphanRepositoryRespectsCutoff(t *testing.T) {
	db := setupOrphanTestDB(t)
	repo := NewOrphanRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.RecordOrphan(ctx, OrphanEntry{URL: "/uploads/a.png", Reason: OrphanReasonRollback}))

	rows, err := repo.ListPending(ctx, time.Now().Add(-time.Hour), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rows, "rows newer than the cutoff wait for the grace period")
}
