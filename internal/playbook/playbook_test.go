package playbook

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsPlaybookFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{path: "restart-api.yaml", want: true},
		{path: "sub/dir/failover.yml", want: true},
		{path: "FAILOVER.YML", want: true},
		{path: "readme.md", want: false},
		{path: "playbook.yaml.bak", want: false},
		{path: "noextension", want: false},
	}

	for _, tt := range tests {
		if got := IsPlaybookFile(tt.path); got != tt.want {
			t.Errorf("IsPlaybookFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIndex_MissingDirectory(t *testing.T) {
	files, err := Index(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty index, got %d entries", len(files))
	}
}

func TestIndex_SortsAndFilters(t *testing.T) {
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write("zz.yaml", "z: 1\n")
	write("aa.yml", "a: 1\n")
	write("nested/mid.yaml", "m: 1\n")
	write("notes.txt", "not a playbook\n")
	write(".hidden.yaml", "skipped\n")

	files, err := Index(dir)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"aa.yml", filepath.Join("nested", "mid.yaml"), "zz.yaml"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d: %+v", len(want), len(files), files)
	}
	for i, f := range files {
		if f.Path != want[i] {
			t.Errorf("files[%d].Path = %s, want %s", i, f.Path, want[i])
		}
	}

	if files[0].Name != "aa" {
		t.Errorf("Name = %s, want aa", files[0].Name)
	}
	if files[0].Size != int64(len("a: 1\n")) {
		t.Errorf("Size = %d, want %d", files[0].Size, len("a: 1\n"))
	}
	if files[0].Modified.IsZero() {
		t.Error("Modified should be populated")
	}
}

func TestIndex_SkipsHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".git", "refs")
	if err := os.MkdirAll(hidden, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(hidden, "sneaky.yaml"), []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "real.yaml"), []byte("y\n"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := Index(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != "real.yaml" {
		t.Errorf("expected only real.yaml, got %+v", files)
	}
}
