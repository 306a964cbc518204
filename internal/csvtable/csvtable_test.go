package csvtable

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, dir, basename, content string) {
	t.Helper()
	path := filepath.Join(dir, basename+".csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

func TestLoadAndColumn(t *testing.T) {
	dir := chdirTemp(t)
	writeCSV(t, dir, "addrs_a", "0x1000,1\n0x2000,2\n0x3000,3\n")

	table, err := Load("addrs_a")
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(table.Rows))
	}
	col, err := table.Column(0)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{0x1000, 0x2000, 0x3000}
	for i := range want {
		if col[i] != want[i] {
			t.Errorf("col[%d] = %d, want %d", i, col[i], want[i])
		}
	}
}

func TestLoadMemoises(t *testing.T) {
	dir := chdirTemp(t)
	writeCSV(t, dir, "addrs_b", "1,2\n")

	t1, err := Load("addrs_b")
	if err != nil {
		t.Fatal(err)
	}
	// Overwrite on disk; the cached Table must not observe the change.
	writeCSV(t, dir, "addrs_b", "9,9\n9,9\n")
	t2, err := Load("addrs_b")
	if err != nil {
		t.Fatal(err)
	}
	if t1 != t2 {
		t.Fatal("Load did not return the memoised Table")
	}
	if len(t2.Rows) != 1 {
		t.Errorf("got %d rows from the memoised table, want 1 (disk changes should not be observed)", len(t2.Rows))
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdirTemp(t)
	if _, err := Load("no_such_basename"); err == nil {
		t.Fatal("expected an error for a missing CSV file")
	}
}

func TestLoadNonIntegerField(t *testing.T) {
	dir := chdirTemp(t)
	writeCSV(t, dir, "addrs_c", "1,abc\n")
	if _, err := Load("addrs_c"); err == nil {
		t.Fatal("expected an error for a non-integer field")
	}
}

func TestOrderedSetDedupAndOrder(t *testing.T) {
	s := NewOrderedSetFrom([]int64{5, 1, 3, 1, 5, 2})
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}
	if s.Min() != 1 {
		t.Errorf("Min() = %d, want 1", s.Min())
	}
	if s.Max() != 5 {
		t.Errorf("Max() = %d, want 5", s.Max())
	}
	if !s.Contains(3) {
		t.Error("Contains(3) = false, want true")
	}
	if s.Contains(4) {
		t.Error("Contains(4) = true, want false")
	}
}

func TestTableOrderedSet(t *testing.T) {
	dir := chdirTemp(t)
	writeCSV(t, dir, "addrs_d", "10,100\n20,200\n30,100\n")

	table, err := Load("addrs_d")
	if err != nil {
		t.Fatal(err)
	}
	set, err := table.OrderedSet(1)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (100 and 200, deduplicated)", set.Len())
	}
}

func TestUniqueRowFound(t *testing.T) {
	dir := chdirTemp(t)
	writeCSV(t, dir, "addrs_e", "1,100\n2,200\n3,300\n")

	table, err := Load("addrs_e")
	if err != nil {
		t.Fatal(err)
	}
	row, err := table.UniqueRow(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if row[1] != 200 {
		t.Errorf("row[1] = %d, want 200", row[1])
	}
}

func TestUniqueRowNotFound(t *testing.T) {
	dir := chdirTemp(t)
	writeCSV(t, dir, "addrs_f", "1,100\n")

	table, err := Load("addrs_f")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := table.UniqueRow(0, 999); err == nil {
		t.Fatal("expected an error: no row matches the key")
	}
}

func TestUniqueRowAmbiguous(t *testing.T) {
	dir := chdirTemp(t)
	writeCSV(t, dir, "addrs_g", "1,100\n1,200\n")

	table, err := Load("addrs_g")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := table.UniqueRow(0, 1); err == nil {
		t.Fatal("expected an error: ambiguous lookup")
	}
}
