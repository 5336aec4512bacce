//go:build stave

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
)

// Default target when running `stave` with no arguments.
var Default = Build

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"l": Lint,
	"i": Install,
	"c": Clean,
	"d": Doctor,
}

const (
	binaryName = "comicarc"
	mainPkg    = "./cmd/comicarc"
	binDir     = "bin"
)

// All runs the complete build pipeline.
func All() error {
	st.Deps(Lint, Test)
	st.Deps(Build)
	return nil
}

// exe appends the platform executable suffix.
func exe(path string) string {
	if runtime.GOOS == "windows" {
		return path + ".exe"
	}
	return path
}

// installDir is GOBIN, then GOPATH/bin, then /usr/local/bin.
func installDir() (string, error) {
	gocmd := st.GoCmd()
	bin, err := sh.Output(gocmd, "env", "GOBIN")
	if err != nil {
		return "", fmt.Errorf("determining GOBIN: %w", err)
	}
	if bin != "" {
		return bin, nil
	}
	gopath, err := sh.Output(gocmd, "env", "GOPATH")
	if err != nil {
		return "", fmt.Errorf("determining GOPATH: %w", err)
	}
	if gopath == "" {
		return "/usr/local/bin", nil
	}
	return filepath.Join(gopath, "bin"), nil
}

// Build compiles the comicarc binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	return sh.RunV("go", "build", "-ldflags", buildLdflags(),
		"-o", exe(filepath.Join(binDir, binaryName)), mainPkg)
}

// Install copies the built binary into the Go install directory.
func Install() error {
	st.Deps(Build)

	bin, err := installDir()
	if err != nil {
		return err
	}
	src := exe(filepath.Join(binDir, binaryName))
	dst := exe(filepath.Join(bin, binaryName))
	if st.Verbose() {
		fmt.Printf("Installing %s to %s\n", src, dst)
	}
	return sh.Copy(dst, src)
}

// Uninstall removes the installed comicarc binary, if present.
func Uninstall() error {
	bin, err := installDir()
	if err != nil {
		return err
	}
	target := exe(filepath.Join(bin, binaryName))
	if st.Verbose() {
		fmt.Printf("Removing %s\n", target)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Test runs all tests with race detection and coverage.
func Test() error {
	return sh.RunV("go", "test", "-race", "-cover", "./...")
}

// TestShort runs the tests that need no external archive tools.
func TestShort() error {
	return sh.RunV("go", "test", "-short", "./...")
}

// Bench runs the page cache and loader benchmarks.
func Bench() error {
	return sh.RunV("go", "test", "-run", "^$", "-bench", ".", "-benchmem",
		"./pkg/comic/pagecache/...", "./pkg/comic/loader/...")
}

// archiveTools are the external programs used for rar and 7z containers.
var archiveTools = []string{"unrar", "rar", "7z"}

// Doctor reports which external archive tools are on PATH. Rar and 7z
// containers cannot be read without them.
func Doctor() error {
	missing := 0
	for _, tool := range archiveTools {
		path, err := exec.LookPath(tool)
		if err != nil {
			fmt.Printf("  %-6s not found\n", tool)
			missing++
			continue
		}
		fmt.Printf("  %-6s %s\n", tool, path)
	}
	if missing == len(archiveTools) {
		return fmt.Errorf("no archive tools found: rar and 7z containers will fail to open")
	}
	return nil
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if st.Verbose() {
		fmt.Printf("Removing %s/\n", binDir)
	}
	return sh.Rm(binDir + "/")
}

// Fmt formats all Go code.
func Fmt() error {
	if err := sh.Run("gofmt", "-w", "."); err != nil {
		return fmt.Errorf("running gofmt: %w", err)
	}
	return sh.Run("goimports", "-w", ".")
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// gitOr returns the trimmed output of git args, or fallback on failure.
func gitOr(fallback string, args ...string) string {
	out, err := sh.Output("git", args...)
	if out = strings.TrimSpace(out); err != nil || out == "" {
		return fallback
	}
	return out
}

// buildLdflags stamps version, commit and build date into cmd/comicarc.
func buildLdflags() string {
	const pkg = "github.com/jamesainslie/comicarc/cmd/comicarc"
	vars := [][2]string{
		{"version", gitOr("dev", "describe", "--tags", "--always")},
		{"commit", gitOr("unknown", "rev-parse", "--short", "HEAD")},
		{"date", time.Now().Format(time.RFC3339)},
	}
	flags := make([]string, 0, len(vars))
	for _, v := range vars {
		flags = append(flags, fmt.Sprintf("-X %s.%s=%s", pkg, v[0], v[1]))
	}
	return strings.Join(flags, " ")
}
