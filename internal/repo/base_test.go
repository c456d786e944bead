package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.Conn() != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil {
		t.Fatalf("expected non-nil DB when context provided")
	}
	if withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through, got %v", withCtx.Statement.Context)
	}

	withoutCtx := base.DB(nil)
	if withoutCtx != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

type keysetRow struct {
	ID   uuid.UUID `gorm:"column:id;type:text;primaryKey"`
	Name string    `gorm:"column:name"`
}

func (keysetRow) TableName() string { return "keyset_rows" }

func TestKeysetPagesInIDOrder(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE keyset_rows (id TEXT PRIMARY KEY, name TEXT)`).Error)

	ids := []uuid.UUID{
		uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		uuid.MustParse("00000000-0000-0000-0000-000000000002"),
	}
	for _, id := range ids {
		require.NoError(t, db.Create(&keysetRow{ID: id, Name: id.String()}).Error)
	}

	var first []keysetRow
	require.NoError(t, db.Scopes(Keyset(uuid.Nil, 2)).Find(&first).Error)
	require.Len(t, first, 2)
	require.Equal(t, ids[1], first[0].ID)
	require.Equal(t, ids[2], first[1].ID)

	var rest []keysetRow
	require.NoError(t, db.Scopes(Keyset(first[1].ID, 2)).Find(&rest).Error)
	require.Len(t, rest, 1)
	require.Equal(t, ids[0], rest[0].ID)
}
