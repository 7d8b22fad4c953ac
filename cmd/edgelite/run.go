package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sanonone/edgelite/pkg/engine"
)

var (
	runRoot   string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run <program.yaml>",
	Short: "Run an instruction program once and commit its writes",
	Long: `Run an instruction program read from a YAML or JSON file ("-" for stdin).
Each instruction is a {source, code, target} triple; code names the opcode.
The program result is printed on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		incs, err := engine.LoadProgram(in)
		if err != nil {
			return err
		}

		eng, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := eng.Close(); err != nil {
				slog.Error("Engine close failed", "error", err)
			}
		}()

		ctx := cmd.Context()
		sess := eng.NewSession()
		result, err := sess.Invoke(ctx, runRoot, incs)
		if err != nil {
			return err
		}
		if !runDryRun {
			if err := sess.Commit(ctx); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runRoot, "root", "root", "node the program runs against")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "discard the program's writes instead of committing them")
}
