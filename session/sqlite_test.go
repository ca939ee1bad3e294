package session

import (
	"context"
	"testing"
	"time"

	"github.com/richinex/tabula/model"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSqliteRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sc := NewContext("persist-me")
	sc.SetSchema(&model.Schema{
		BaseID: "appX",
		Tables: []model.Table{{ID: "tbl1", Name: "Tasks"}},
	}, time.Now())
	sc.RecordTurn([]OpRecord{
		{Capability: model.CapGetBaseSchema, OK: true, At: time.Now()},
		{Capability: model.CapListRecords, Table: "Tasks", OK: true, At: time.Now()},
	})

	if err := store.Save(ctx, sc); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := store.Load(ctx, "persist-me")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Version != 1 {
		t.Errorf("expected version 1, got %d", loaded.Version)
	}
	if loaded.Schema == nil || loaded.Schema.BaseID != "appX" {
		t.Errorf("schema did not survive round trip: %+v", loaded.Schema)
	}
	if len(loaded.Recent) != 2 || loaded.Recent[1].Table != "Tasks" {
		t.Errorf("recent history did not survive round trip: %+v", loaded.Recent)
	}
}

func TestSqliteLoadUnknownSession(t *testing.T) {
	store := newTestStore(t)

	sc, err := store.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.SessionID != "never-saved" || sc.Version != 0 {
		t.Errorf("expected fresh context, got %+v", sc)
	}
}

func TestSqliteSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sc := NewContext("s")
	sc.RecordTurn([]OpRecord{{Capability: model.CapListTables, OK: true, At: time.Now()}})
	if err := store.Save(ctx, sc); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	sc.RecordTurn([]OpRecord{{Capability: model.CapCreateRecord, OK: false, At: time.Now()}})
	if err := store.Save(ctx, sc); err != nil {
		t.Fatalf("failed to re-save: %v", err)
	}

	loaded, err := store.Load(ctx, "s")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Version != 2 || len(loaded.Recent) != 2 {
		t.Errorf("expected overwritten context, got version %d with %d records", loaded.Version, len(loaded.Recent))
	}
}

func TestSqliteDeleteAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		if err := store.Save(ctx, NewContext(id)); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected ids: %v", ids)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	ids, _ = store.List(ctx)
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("unexpected ids after delete: %v", ids)
	}
}
