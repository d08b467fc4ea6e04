// Package config loads sircc's process-level configuration from
// environment variables (spec.md §6, SPEC_FULL.md §4.10). The surface
// is small enough that no third-party flag/config library earns its
// keep here: three filesystem knobs plus a log level and a backend
// selector, read once at process start into a plain struct.
package config

import (
	"os"
	"strings"

	"github.com/sirtoolchain/sircc/internal/logging"
)

// Backend names selectable via SIRCC_BACKEND.
const (
	BackendStub = "stub"
	BackendLLVM = "llvm"
	BackendZASM = "zasm"
	BackendInterp = "interp"
)

// Config holds every environment-derived setting sircc reads at
// startup.
type Config struct {
	// FSRoot sandboxes the file/aio capability's path resolution
	// (ZI_FS_ROOT). Empty disables sandboxing.
	FSRoot string

	// TempDir is used for scratch files the compiler or runtime
	// creates (TMPDIR, falling back to os.TempDir's default search).
	TempDir string

	// ZABIRoot optionally relocates the zABI capability descriptor
	// root (SIRCC_ZABI25_ROOT); empty means "use the built-in
	// registry wiring".
	ZABIRoot string

	// LogLevel is the operational logger's minimum level
	// (SIRCC_LOG_LEVEL): debug|info|warn|error|fatal, default info.
	LogLevel logging.Level

	// Backend selects which Backend implementation the driver
	// constructs (SIRCC_BACKEND). Defaults to BackendStub since the
	// real llvm/zasm/interp backends are excluded external
	// collaborators (spec.md §1).
	Backend string
}

// Load reads Config from the process environment.
func Load() Config {
	cfg := Config{
		FSRoot:   os.Getenv("ZI_FS_ROOT"),
		TempDir:  firstNonEmpty(os.Getenv("TMPDIR"), os.TempDir()),
		ZABIRoot: os.Getenv("SIRCC_ZABI25_ROOT"),
		LogLevel: logging.ParseLevel(os.Getenv("SIRCC_LOG_LEVEL")),
		Backend:  normalizeBackend(os.Getenv("SIRCC_BACKEND")),
	}
	return cfg
}

func normalizeBackend(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case BackendLLVM:
		return BackendLLVM
	case BackendZASM:
		return BackendZASM
	case BackendInterp:
		return BackendInterp
	default:
		return BackendStub
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
