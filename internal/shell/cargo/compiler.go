package cargo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/artpar/trellis/internal/core/build"
)

// Compiler runs planned compiler commands.
type Compiler struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// NewCompiler creates a compiler that streams process output to the given
// writers. Nil writers discard output.
func NewCompiler(stdout, stderr io.Writer, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Compiler{
		stdout: stdout,
		stderr: stderr,
		logger: logger.With("component", "compiler"),
	}
}

// Run executes cmd in dir. A nonzero exit becomes a BuildError with ErrExit.
func (c *Compiler) Run(ctx context.Context, cmd build.Command, dir string) error {
	proc := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	proc.Dir = dir
	proc.Env = append(os.Environ(), cmd.Env...)
	proc.Stdout = c.stdout
	proc.Stderr = c.stderr

	c.logger.Info("compiling", "package", cmd.Package, "command", cmd.String())

	if err := proc.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return build.NewExitError(cmd.Package, exitErr.ExitCode())
		}
		return build.NewBuildError("Compile", cmd.Package, err.Error(), build.ErrCompilerStart)
	}
	return nil
}
