// Package bindings generates client packages for deployed contracts.
package bindings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/shell/console"
)

// DefaultCommand is the binding generator used when none is configured.
var DefaultCommand = []string{"stellar", "contract", "bindings", "typescript"}

// ErrGenerator is returned when the binding generator fails.
var ErrGenerator = errors.New("binding generator failed")

var importTemplate = template.Must(template.New("import").Parse(`import * as Client from '{{.Name}}';
import { rpcUrl } from './util';

export default new Client.Client({
  networkPassphrase: '{{.Passphrase}}',
  contractId: '{{.ContractID}}',
  rpcUrl,{{if .AllowHTTP}}
  allowHttp: true,{{end}}
});
`))

// Request describes one contract to generate bindings for.
type Request struct {
	Name       string
	ContractID string
	Network    environment.Network
	AllowHTTP  bool
}

// Generator runs the external binding generator and writes import files.
type Generator struct {
	root    string
	command []string
	output  io.Writer
	console *console.Console
	logger  *slog.Logger
}

// NewGenerator creates a generator writing into the workspace at root.
// Generator process output goes to output.
func NewGenerator(root string, command []string, output io.Writer, con *console.Console, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if con == nil {
		con = console.Discard()
	}
	if len(command) == 0 {
		command = DefaultCommand
	}
	if output == nil {
		output = io.Discard
	}
	return &Generator{
		root:    root,
		command: command,
		output:  output,
		console: con,
		logger:  logger.With("component", "bindings"),
	}
}

// PackageDir is where the client package for name is generated.
func (g *Generator) PackageDir(name string) string {
	return filepath.Join(g.root, "packages", name)
}

// ImportPath is the import file written for name.
func (g *Generator) ImportPath(name string) string {
	return filepath.Join(g.root, "src", "contracts", name+".ts")
}

// Generate produces the client package and import file for a contract.
func (g *Generator) Generate(ctx context.Context, req Request) error {
	g.console.Subtask("binding %q contract", req.Name)

	args := append(append([]string{}, g.command[1:]...),
		"--contract-id", req.ContractID,
		"--output-dir", g.PackageDir(req.Name),
		"--rpc-url", req.Network.RPCURL,
		"--network-passphrase", req.Network.Passphrase,
		"--overwrite",
	)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.command[0], args...)
	cmd.Dir = g.root
	cmd.Stdout = g.output
	cmd.Stderr = io.MultiWriter(g.output, &stderr)

	g.logger.Debug("generating bindings", "contract", req.Name, "contract_id", req.ContractID)
	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) == 0 {
			msg = []byte(err.Error())
		}
		return fmt.Errorf("binding %q: %s: %w", req.Name, msg, ErrGenerator)
	}

	g.console.Subtask("importing %q contract", req.Name)
	return g.WriteImport(req)
}

// WriteImport writes the import file referencing the deployed contract.
func (g *Generator) WriteImport(req Request) error {
	var buf bytes.Buffer
	if err := importTemplate.Execute(&buf, map[string]any{
		"Name":       req.Name,
		"ContractID": req.ContractID,
		"Passphrase": req.Network.Passphrase,
		"AllowHTTP":  req.AllowHTTP,
	}); err != nil {
		return fmt.Errorf("rendering import for %q: %w", req.Name, err)
	}

	path := g.ImportPath(req.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
