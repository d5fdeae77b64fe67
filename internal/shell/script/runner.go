// Package script runs post-deploy initialization scripts.
//
// A script is a list of contract calls, one per line:
//
//	[SOURCE_ACCOUNT=<account>] <function> [args...]
//
// Words are expanded like shell words. Command substitutions run through an
// embedded shell interpreter with TRELLIS_CONTRACT_ID, TRELLIS_RPC_URL and
// TRELLIS_NETWORK_PASSPHRASE exported.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/shell/console"
	"github.com/artpar/trellis/internal/shell/rpc"
)

// SourceAccountVar selects the source account of a single call.
const SourceAccountVar = "SOURCE_ACCOUNT"

// Invoker calls contract functions.
type Invoker interface {
	InvokeContract(ctx context.Context, contractID, function string, args []string, source rpc.Signer) (json.RawMessage, error)
}

// AccountLookup resolves named accounts to signers.
type AccountLookup func(ctx context.Context, name string) (rpc.Signer, error)

// Target is the contract a script initializes.
type Target struct {
	Contract   string
	ContractID string
	Network    environment.Network
	Source     rpc.Signer // default source account
}

// Call is one parsed and expanded script statement.
type Call struct {
	Line     uint
	Account  string // empty for the default account
	Function string
	Args     []string
}

func (c Call) String() string {
	return strings.Join(append([]string{c.Function}, c.Args...), " ")
}

// Runner executes init scripts.
type Runner struct {
	dir      string
	invoker  Invoker
	accounts AccountLookup
	console  *console.Console
	logger   *slog.Logger
}

// NewRunner creates a runner. Substitutions run in dir.
func NewRunner(dir string, invoker Invoker, accounts AccountLookup, con *console.Console, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if con == nil {
		con = console.Discard()
	}
	return &Runner{
		dir:      dir,
		invoker:  invoker,
		accounts: accounts,
		console:  con,
		logger:   logger.With("component", "script"),
	}
}

// Run parses script, expands every statement and invokes the calls in order.
// Nothing is invoked when any statement fails to parse or expand.
func (r *Runner) Run(ctx context.Context, script string, target Target) error {
	r.console.Task("running initialization script for %q", target.Contract)

	calls, err := r.Expand(ctx, script, target)
	if err != nil {
		return err
	}

	for _, call := range calls {
		source := target.Source
		name := "default account"
		if call.Account != "" {
			name = call.Account
			source, err = r.accounts(ctx, call.Account)
			if err != nil {
				return NewScriptError(target.Contract, call.Line,
					fmt.Sprintf("source account %q: %v", call.Account, err), ErrUnknownAccount)
			}
		}

		r.console.Subtask("%s -- %s", name, call)
		r.logger.Info("invoking", "contract", target.Contract, "function", call.Function, "line", call.Line)

		if _, err := r.invoker.InvokeContract(ctx, target.ContractID, call.Function, call.Args, source); err != nil {
			return err
		}
	}

	r.console.Subtask("initialization script for %q completed successfully", target.Contract)
	return nil
}

// Expand parses script and expands every statement into a call.
func (r *Runner) Expand(ctx context.Context, script string, target Target) ([]Call, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), target.Contract)
	if err != nil {
		var line uint
		if pe, ok := err.(syntax.ParseError); ok {
			line = pe.Pos.Line()
		}
		return nil, NewScriptError(target.Contract, line, err.Error(), ErrParse)
	}

	env := expand.ListEnviron(append(os.Environ(),
		"TRELLIS_CONTRACT_ID="+target.ContractID,
		"TRELLIS_RPC_URL="+target.Network.RPCURL,
		"TRELLIS_NETWORK_PASSPHRASE="+target.Network.Passphrase,
	)...)

	var stderr bytes.Buffer
	cfg := &expand.Config{
		Env: env,
		CmdSubst: func(w io.Writer, cs *syntax.CmdSubst) error {
			runner, err := interp.New(
				interp.Dir(r.dir),
				interp.Env(env),
				interp.StdIO(nil, w, &stderr),
				interp.Params("-e"),
			)
			if err != nil {
				return err
			}
			for _, stmt := range cs.Stmts {
				if err := runner.Run(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	}

	calls := make([]Call, 0, len(file.Stmts))
	for _, stmt := range file.Stmts {
		line := stmt.Pos().Line()

		call, ok := stmt.Cmd.(*syntax.CallExpr)
		if !ok || stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
			return nil, NewScriptError(target.Contract, line,
				"each line must be a single contract call", ErrParse)
		}
		if len(call.Args) == 0 {
			return nil, NewScriptError(target.Contract, line,
				"missing function name", ErrParse)
		}

		c := Call{Line: line}
		for _, as := range call.Assigns {
			if as.Name == nil || as.Name.Value != SourceAccountVar || as.Value == nil {
				return nil, NewScriptError(target.Contract, line,
					fmt.Sprintf("only %s=<account> may prefix a call", SourceAccountVar), ErrParse)
			}
			stderr.Reset()
			value, err := expand.Literal(cfg, as.Value)
			if err != nil {
				return nil, r.substError(target.Contract, line, err, &stderr)
			}
			c.Account = value
		}

		stderr.Reset()
		fields, err := expand.Fields(cfg, call.Args...)
		if err != nil {
			return nil, r.substError(target.Contract, line, err, &stderr)
		}
		if len(fields) == 0 {
			return nil, NewScriptError(target.Contract, line, "missing function name", ErrParse)
		}
		c.Function = fields[0]
		c.Args = fields[1:]
		calls = append(calls, c)
	}
	return calls, nil
}

func (r *Runner) substError(contract string, line uint, err error, stderr *bytes.Buffer) error {
	e := NewScriptError(contract, line, err.Error(), ErrSubcommand)
	e.Stderr = strings.TrimSpace(stderr.String())
	return e
}
