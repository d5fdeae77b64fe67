package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/trellis/internal/core/build"
	"github.com/artpar/trellis/internal/core/environment"
	"github.com/artpar/trellis/internal/shell/devloop"
	"github.com/artpar/trellis/internal/shell/dotenv"
	"github.com/artpar/trellis/internal/shell/pipeline"
	"github.com/artpar/trellis/internal/shell/store"
)

// EnvVar selects the environment when --env is not given.
const EnvVar = "TRELLIS_ENV"

var errNoValue = errors.New("no value given and stdin is empty")

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "trellis",
		Short:         "Build and deploy smart contract workspaces",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable coloured status output")

	root.AddCommand(
		newBuildCommand(a),
		newDevCommand(a),
		newUpdateEnvCommand(a),
		newAliasesCommand(a),
		newHistoryCommand(a),
	)
	return root
}

// =============================================================================
// build / dev
// =============================================================================

type buildFlags struct {
	manifestPath      string
	pkg               string
	profile           string
	features          string
	allFeatures       bool
	noDefaultFeatures bool
	list              bool
	outDir            string
	printOnly         bool
	buildClients      bool
	env               string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.manifestPath, "manifest-path", "Cargo.toml", "path to the workspace manifest")
	fl.StringVar(&f.pkg, "package", "", "package to build; all deployable packages when omitted")
	fl.StringVar(&f.profile, "profile", "", "build with the given profile")
	fl.StringVar(&f.features, "features", "", "space or comma separated features to activate")
	fl.BoolVar(&f.allFeatures, "all-features", false, "activate all features")
	fl.BoolVar(&f.noDefaultFeatures, "no-default-features", false, "do not activate the default feature")
	fl.BoolVar(&f.list, "list", false, "list package names in build order")
	fl.BoolVar(&f.list, "ls", false, "alias for --list")
	fl.StringVar(&f.outDir, "out-dir", "", "directory to link artifacts into")
	fl.BoolVar(&f.printOnly, "print-commands-only", false, "print build commands without running them")
	fl.BoolVar(&f.buildClients, "build-clients", false, "deploy contracts and generate clients after building")
	fl.StringVar(&f.env, "env", "", "environment (development, testing, staging, production); defaults to $"+EnvVar)

	cmd.MarkFlagsMutuallyExclusive("all-features", "features")
	cmd.MarkFlagsMutuallyExclusive("all-features", "no-default-features")
	cmd.MarkFlagsMutuallyExclusive("print-commands-only", "out-dir")
}

func (f *buildFlags) options() (pipeline.Options, error) {
	envName := f.env
	if envName == "" {
		envName = os.Getenv(EnvVar)
	}
	env, err := environment.ParseName(envName)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		BuildOptions: pipeline.BuildOptions{
			ManifestPath: f.manifestPath,
			Package:      f.pkg,
			Build: build.Options{
				Profile:           f.profile,
				Features:          build.ParseFeatures(f.features),
				AllFeatures:       f.allFeatures,
				NoDefaultFeatures: f.noDefaultFeatures,
			},
			OutDir: f.outDir,
			List:   f.list,
			DryRun: f.printOnly,
		},
		BuildClients: f.buildClients,
		Environment:  env,
	}, nil
}

func newBuildCommand(a *app) *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build contracts and optionally deploy them with their clients",
		Long: `Builds every workspace package with a cdylib crate type, contract
dependencies first. Artifacts are linked into target/trellis unless --out-dir
is given. With --build-clients the built contracts are deployed according to
environments.toml and client bindings are generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			builder, err := a.builder(a.metadata())
			if err != nil {
				return err
			}

			var deployer *pipeline.Deployer
			if opts.BuildClients && !opts.List && !opts.DryRun {
				s, _, err := a.openWorkspaceStore(cmd.Context(), opts.ManifestPath)
				if err != nil {
					return err
				}
				defer s.Close()
				deployer = a.deployer(s)
			}

			_, err = pipeline.New(builder, deployer, a.logger).Run(cmd.Context(), opts)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func newDevCommand(a *app) *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Build, deploy and regenerate clients on every change",
		Long: `Runs a development build with clients, then watches the workspace and
rebuilds after each burst of changes. Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			metadata := a.metadata()
			builder, err := a.builder(metadata)
			if err != nil {
				return err
			}
			s, path, err := a.openWorkspaceStore(cmd.Context(), opts.ManifestPath)
			if err != nil {
				return err
			}
			defer s.Close()

			watchCfg := devloop.Config{Debounce: a.cfg.Watch.Debounce, Ignore: a.cfg.Watch.Ignore}
			if path != memoryStore {
				watchCfg.Exclude = []string{filepath.Dir(path)}
			}
			session := devloop.NewSession(
				pipeline.New(builder, a.deployer(s), a.logger),
				metadata, watchCfg, a.console, a.logger,
			)
			return session.Run(cmd.Context(), opts)
		},
	}
	flags.register(cmd)
	return cmd
}

// =============================================================================
// update-env
// =============================================================================

func newUpdateEnvCommand(a *app) *cobra.Command {
	var name, value, file string
	cmd := &cobra.Command{
		Use:   "update-env",
		Short: "Set a variable in a .env file",
		Long:  "Sets NAME=value in the env file, replacing an existing assignment. Without --value the first line of stdin is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("value") {
				line, err := firstLine(a.stdin)
				if err != nil {
					return err
				}
				value = line
			}
			if err := dotenv.Set(file, name, value); err != nil {
				return err
			}
			a.logger.Info("env file updated", "file", file, "name", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the variable to set")
	cmd.Flags().StringVar(&value, "value", "", "value to set; read from stdin when omitted")
	cmd.Flags().StringVar(&file, "env-file", dotenv.DefaultFile, "path to the env file")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func firstLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errNoValue
}

// =============================================================================
// aliases / history
// =============================================================================

func newAliasesCommand(a *app) *cobra.Command {
	var passphrase, network, output, manifestPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "aliases",
		Short: "List deployed contract aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if network != "" {
				n, err := environment.ResolveNetwork(environment.Network{Name: network}, a.cfg.NetworkRegistry())
				if err != nil {
					return err
				}
				passphrase = n.Passphrase
			}

			s, _, err := a.openWorkspaceStore(cmd.Context(), manifestPath)
			if err != nil {
				return err
			}
			defer s.Close()

			aliases, err := s.ListAliases(cmd.Context(), passphrase, store.ListOptions{Limit: limit})
			if err != nil {
				return err
			}

			return render(a.stdout, output, aliases, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "NAME\tCONTRACT ID\tNETWORK\tUPDATED")
				for _, al := range aliases {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", al.Name, al.ContractID, al.Passphrase, al.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
			})
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "only aliases on the network with this passphrase")
	cmd.Flags().StringVar(&network, "network", "", "only aliases on this named network")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, yaml)")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultListOptions().Limit, "maximum number of aliases")
	cmd.Flags().StringVar(&manifestPath, "manifest-path", "", "path to the workspace manifest, found from the current directory when empty")
	cmd.MarkFlagsMutuallyExclusive("passphrase", "network")
	return cmd
}

func newHistoryCommand(a *app) *cobra.Command {
	var output, manifestPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "history [contract]",
		Short: "Show deployment history, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var contract string
			if len(args) == 1 {
				contract = args[0]
			}

			s, _, err := a.openWorkspaceStore(cmd.Context(), manifestPath)
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.ListHistory(cmd.Context(), contract, store.ListOptions{Limit: limit})
			if err != nil {
				return err
			}

			return render(a.stdout, output, entries, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "TIME\tCONTRACT\tENVIRONMENT\tACTION\tCONTRACT ID\tRUN")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.Contract, e.Environment, e.Action, e.ContractID, e.RunID)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, yaml)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	cmd.Flags().StringVar(&manifestPath, "manifest-path", "", "path to the workspace manifest, found from the current directory when empty")
	return cmd
}

// render writes records as YAML or as an aligned table.
func render(out io.Writer, format string, records any, table func(w *tabwriter.Writer)) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		table(w)
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q, expected table or yaml", format)
	}
}
