package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	allowedDir := t.TempDir()
	otherDir := t.TempDir()
	subDir := filepath.Join(allowedDir, "subdir")
	if err := os.MkdirAll(subDir, 0700); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		allowedDirs []string
		errContains string
	}{
		{"inside allowed dir", filepath.Join(allowedDir, "run.arrow"), []string{allowedDir}, ""},
		{"in subdirectory", filepath.Join(subDir, "run.arrow"), []string{allowedDir}, ""},
		{"not yet created subdirectory", filepath.Join(allowedDir, "a", "b", "run.json"), []string{allowedDir}, ""},
		{"exactly the allowed dir", allowedDir, []string{allowedDir}, ""},
		{"redundant separators", allowedDir + string(os.PathSeparator) + string(os.PathSeparator) + "run.arrow", []string{allowedDir}, ""},
		{"matches second dir", filepath.Join(otherDir, "run.arrow"), []string{allowedDir, otherDir}, ""},
		{"dot-dot traversal", filepath.Join(allowedDir, "..", "etc", "passwd"), []string{allowedDir}, "outside allowed directories"},
		{"embedded dot-dot", filepath.Join(allowedDir, "subdir", "..", "..", "etc", "passwd"), []string{allowedDir}, "outside allowed directories"},
		{"outside", filepath.Join(otherDir, "run.arrow"), []string{allowedDir}, "outside allowed directories"},
		{"null byte", filepath.Join(allowedDir, "r\x00un.arrow"), []string{allowedDir}, "null byte"},
		{"empty path", "", []string{allowedDir}, "empty"},
		{"no allowed dirs", filepath.Join(allowedDir, "run.arrow"), nil, "no allowed directories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.allowedDirs)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("ValidatePath() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidatePath() error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestValidatePath_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on Windows")
	}

	allowedDir := t.TempDir()
	outsideDir := t.TempDir()
	realSubDir := filepath.Join(allowedDir, "real")
	if err := os.MkdirAll(realSubDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outsideDir, filepath.Join(allowedDir, "escape")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(realSubDir, filepath.Join(allowedDir, "link")); err != nil {
		t.Fatal(err)
	}

	err := ValidatePath(filepath.Join(allowedDir, "escape", "run.arrow"), []string{allowedDir})
	if !errors.Is(err, ErrOutsideAllowed) {
		t.Errorf("symlink escape: error = %v, want ErrOutsideAllowed", err)
	}
	if err := ValidatePath(filepath.Join(allowedDir, "link", "run.arrow"), []string{allowedDir}); err != nil {
		t.Errorf("symlink inside allowed dir rejected: %v", err)
	}
}

func TestResolve(t *testing.T) {
	dir := ExportDir(t.TempDir())

	got, err := Resolve("run.arrow", dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if want, _ := filepath.Abs(filepath.Join(dir, "run.arrow")); got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}

	if _, err := Resolve("../config.yaml", dir); !errors.Is(err, ErrOutsideAllowed) {
		t.Errorf("Resolve(../config.yaml) error = %v, want ErrOutsideAllowed", err)
	}
	if _, err := Resolve("/etc/passwd", dir); !errors.Is(err, ErrOutsideAllowed) {
		t.Errorf("Resolve(/etc/passwd) error = %v, want ErrOutsideAllowed", err)
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/home/user/.sfcsim/config.yaml", ".../.sfcsim/config.yaml"},
		{"/a/b/c/d/e.txt", ".../d/e.txt"},
		{"/file.txt", "file.txt"},
		{"dir/file.txt", ".../dir/file.txt"},
		{"file.txt", "file.txt"},
		{"/home/user/.sfcsim/", ".../user/.sfcsim"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.input); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
