// Command sircc is the compile driver (SPEC_FULL.md §2 component L):
// it reads a JSONL SIR file, parses it, validates it, and dispatches
// to the configured backend, stopping at the first stage that leaves
// the diagnostic surface in an error state (spec.md §7 "Downstream
// stages must not execute if any error was emitted"). The CLI flag
// wrapper is an excluded external collaborator (spec.md §1), so flag
// handling here is deliberately minimal: one positional path argument
// plus the environment-driven configuration of SPEC_FULL.md §4.10.
package main

import (
	"fmt"
	"os"

	"github.com/sirtoolchain/sircc/internal/backend"
	"github.com/sirtoolchain/sircc/internal/config"
	"github.com/sirtoolchain/sircc/internal/diag"
	"github.com/sirtoolchain/sircc/internal/fileaio"
	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/logging"
	"github.com/sirtoolchain/sircc/internal/problem"
	"github.com/sirtoolchain/sircc/internal/validate"
	"github.com/sirtoolchain/sircc/internal/zabi"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.Load()
	log := logging.New(logging.Config{Level: cfg.LogLevel, Component: "sircc", Output: os.Stderr, Colorize: true})

	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sircc <path-to-sir.jsonl>")
		return problem.SeverityUsage.ExitCode()
	}
	path := args[0]

	handles := zabi.NewTable()
	caps := zabi.NewRegistry()
	caps.Register("file", "aio@v1", fileaio.Opener(cfg.FSRoot))
	aioHandle, err := caps.Open(handles, "file", "aio@v1")
	if err != nil {
		log.Fatal("opening file/aio capability", logging.Err(err))
	}
	log.Debug("file/aio capability ready", logging.Int("handle", aioHandle))
	defer caps.Close(handles, aioHandle)

	f, err := os.Open(path)
	if err != nil {
		log.Error("opening input", logging.Str("path", path), logging.Err(err))
		return 2
	}
	defer f.Close()

	prog, err := ir.Parse(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return 1
	}
	log.Info("parsed program", logging.Int("nodes", len(prog.Tables.Node)))

	surf := diag.NewSurface()
	v := validate.New(prog, surf)
	if !v.Run() {
		renderDiagnostics(surf, path)
		return surf.ExitCode()
	}

	bk := selectBackend(cfg, log)
	if err := backend.Dispatch(bk, prog.Tables, surf); err != nil {
		renderDiagnostics(surf, path)
		return surf.ExitCode()
	}

	log.Info("compilation finished", logging.Str("backend", bk.Name()))
	return 0
}

// selectBackend constructs the Backend named by cfg.Backend. Since
// the real llvm/zasm/interp backends are excluded external
// collaborators (spec.md §1), every selector other than the default
// currently also yields the stub, logged so the operator isn't
// surprised by silent behavior.
func selectBackend(cfg config.Config, log *logging.Logger) backend.Backend {
	if cfg.Backend != config.BackendStub {
		log.Warn("backend not available in this build, using stub", logging.Str("requested", cfg.Backend))
	}
	return backend.NewStubBackend()
}

func renderDiagnostics(surf *diag.Surface, sourceFile string) {
	for _, d := range surf.Diagnostics() {
		diag.RenderText(os.Stderr, d, sourceFile, 2)
	}
}
