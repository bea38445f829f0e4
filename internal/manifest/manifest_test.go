package manifest

import (
	"os"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-manifest-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	err := db.UpsertFile(FileRow{Path: "docs/a.md", Checksum: "abc", Chunks: 3, Points: 3, IndexedAt: now})
	if err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}

	row, err := db.Get("docs/a.md")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row == nil {
		t.Fatal("Get returned nil for existing row")
	}
	if row.Checksum != "abc" || row.Chunks != 3 || row.Points != 3 {
		t.Errorf("row = %+v", row)
	}
}

func TestGet_Missing(t *testing.T) {
	db := testDB(t)
	row, err := db.Get("nope.md")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row != nil {
		t.Errorf("row = %+v, want nil", row)
	}
}

func TestUpsert_Replaces(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()

	if err := db.UpsertFile(FileRow{Path: "a.md", Checksum: "v1", Chunks: 1, Points: 1, IndexedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFile(FileRow{Path: "a.md", Checksum: "v2", Chunks: 2, Points: 2, IndexedAt: now}); err != nil {
		t.Fatal(err)
	}

	row, err := db.Get("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if row.Checksum != "v2" || row.Points != 2 {
		t.Errorf("row = %+v, want replaced values", row)
	}

	files, _, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if files != 1 {
		t.Errorf("files = %d, want 1 after upsert of same path", files)
	}
}

func TestDeleteFile(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertFile(FileRow{Path: "a.md", Checksum: "x", IndexedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteFile("a.md"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	row, err := db.Get("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Error("row survived delete")
	}
	// Deleting an absent row is a no-op.
	if err := db.DeleteFile("a.md"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	for _, row := range []FileRow{
		{Path: "a.md", Checksum: "ca", IndexedAt: now},
		{Path: "b.md", Checksum: "cb", IndexedAt: now},
	} {
		if err := db.UpsertFile(row); err != nil {
			t.Fatal(err)
		}
	}
	sums, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 || sums["a.md"] != "ca" || sums["b.md"] != "cb" {
		t.Errorf("sums = %v", sums)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	if err := db.UpsertFile(FileRow{Path: "a.md", Points: 4, IndexedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFile(FileRow{Path: "b.md", Points: 6, IndexedAt: now}); err != nil {
		t.Fatal(err)
	}
	files, points, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if files != 2 || points != 10 {
		t.Errorf("files = %d points = %d, want 2 and 10", files, points)
	}
}
