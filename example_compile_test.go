package callcache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestExamplesBuild compiles every examples/<name>/main.go against this
// module. The examples carry an ignore build tag so they stay out of ./...
func TestExamplesBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("builds every example with the go toolchain")
	}
	root, err := filepath.Abs(".")
	if err != nil {
		t.Fatalf("resolve module root: %v", err)
	}
	mains, err := filepath.Glob(filepath.Join("examples", "*", "main.go"))
	if err != nil || len(mains) == 0 {
		t.Fatalf("expected examples, got %v (err=%v)", mains, err)
	}

	for _, main := range mains {
		main := main
		t.Run(filepath.Base(filepath.Dir(main)), func(t *testing.T) {
			t.Parallel()
			if err := buildExample(t.TempDir(), root, main); err != nil {
				t.Fatalf("example %s failed to build:\n%v", main, err)
			}
		})
	}
}

func buildExample(dir, root, main string) error {
	src, err := os.ReadFile(main)
	if err != nil {
		return fmt.Errorf("read example: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), stripBuildTags(src), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(exampleGoMod(root)), 0o644); err != nil {
		return err
	}

	cmd := exec.Command("go", "build", "-mod=mod", "-o", os.DevNull, ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.New(stderr.String())
	}
	return nil
}

func exampleGoMod(root string) string {
	return "module examplebuild\n\n" +
		"go 1.24.4\n\n" +
		"require github.com/goforj/callcache v0.0.0\n\n" +
		"replace github.com/goforj/callcache => " + filepath.ToSlash(root) + "\n"
}

// stripBuildTags drops the leading constraint lines so the example compiles
// as an ordinary main package.
func stripBuildTags(src []byte) []byte {
	lines := strings.Split(string(src), "\n")
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.HasPrefix(line, "//go:build") && !strings.HasPrefix(line, "// +build") {
			break
		}
		i++
	}
	return []byte(strings.Join(lines[i:], "\n"))
}

func TestStripBuildTags(t *testing.T) {
	src := "//go:build ignore\n// +build ignore\n\npackage main\n"
	if got := string(stripBuildTags([]byte(src))); got != "package main\n" {
		t.Fatalf("unexpected stripped source %q", got)
	}
}
