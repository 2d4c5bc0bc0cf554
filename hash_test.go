package gtfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDatasetHash(t *testing.T) {
	dir := newDirBuilderWithDefaults().build(t)
	first, err := DatasetHash(dir)
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	if first == "" {
		t.Fatal("DatasetHash() returned an empty hash")
	}

	again, err := DatasetHash(dir)
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	if again != first {
		t.Errorf("hash is not stable: %s then %s", first, again)
	}

	// The hash is a function of content, not location.
	otherDir := newDirBuilderWithDefaults().build(t)
	other, err := DatasetHash(otherDir)
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	if other != first {
		t.Errorf("identical datasets hash differently: %s vs %s", first, other)
	}

	// Files outside the dataset do not participate.
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("scratch"), 0o644); err != nil {
		t.Fatal(err)
	}
	withStray, err := DatasetHash(dir)
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	if withStray != first {
		t.Errorf("a stray file changed the hash: %s vs %s", first, withStray)
	}

	// Any change to a dataset file does.
	if err := os.WriteFile(
		filepath.Join(dir, "stops.txt"),
		[]byte("stop_id,stop_name,stop_lat,stop_lon\nstop_id,Central,1.5,2.5\nnew,Harbor,1.6,2.6"),
		0o644,
	); err != nil {
		t.Fatal(err)
	}
	changed, err := DatasetHash(dir)
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	if changed == first {
		t.Error("editing stops.txt did not change the hash")
	}
}

func TestDatasetHash_OptionalFileChanges(t *testing.T) {
	withoutShapes := newDirBuilderWithDefaults().remove("shapes.txt")
	first, err := DatasetHash(withoutShapes.build(t))
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	withShapes := newDirBuilderWithDefaults().add(
		"shapes.txt",
		"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
		"shape_1,1.5,2.5,1",
	)
	second, err := DatasetHash(withShapes.build(t))
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	if first == second {
		t.Error("adding shapes.txt did not change the hash")
	}
}

func TestDatasetHash_EmptyDir(t *testing.T) {
	a, err := DatasetHash(t.TempDir())
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	b, err := DatasetHash(t.TempDir())
	if err != nil {
		t.Fatalf("DatasetHash() err = %v, want nil", err)
	}
	if a != b {
		t.Errorf("empty directories hash differently: %s vs %s", a, b)
	}
}
