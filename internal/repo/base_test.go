package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type widget struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	OwnerID uint64
	Name    string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:repo_base?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&widget{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)

	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	withoutCtx := base.DB(nil)
	if withoutCtx != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestOwnedAndFirst(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	ctx := context.Background()

	if err := db.Create(&[]widget{{OwnerID: 7, Name: "a"}, {OwnerID: 8, Name: "b"}}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	var got widget
	found, err := First(base.Owned(ctx, 8).Where("name = ?", "b"), &got)
	if err != nil || !found {
		t.Fatalf("expected row for owner 8, found=%v err=%v", found, err)
	}

	found, err = First(base.Owned(ctx, 7).Where("name = ?", "b"), &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("owner scope leaked a foreign row")
	}
}
