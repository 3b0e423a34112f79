package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
	"xdao.co/origin/registry"
	"xdao.co/origin/registry/bundle"
)

func exportCmd(g *globals) *cobra.Command {
	var (
		outPath string
		index   bool
	)
	cmd := &cobra.Command{
		Use:   "export [digest...]",
		Short: "Write registry records to a self-verifying archive",
		Long: `Export writes the given records, or every record when none is given,
to a deterministic TAR archive. Each record carries its reference so the
archive can be audited without access to the registry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var digests []fingerprint.Digest
			for _, a := range args {
				d, err := fingerprint.Parse(a)
				if err != nil {
					return model.WrapError(model.KindValidation, "invalid digest "+a, err)
				}
				digests = append(digests, d)
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			reg, closeFn, err := g.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := bundle.Export(cmd.Context(), w, reg, digests, bundle.ExportOptions{IncludeIndex: index})
			if err != nil {
				return err
			}
			if outPath != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", n, outPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "archive path (- for stdout)")
	cmd.Flags().BoolVar(&index, "index", true, "include index.json")
	return cmd
}

func importCmd(g *globals) *cobra.Command {
	var opts bundle.ImportOptions
	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Adopt the records of an archive into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			reg, closeFn, err := g.openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			st, err := bundle.Import(cmd.Context(), in, reg, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "records: %d imported: %d already present: %d\n", st.Records, st.Imported, st.Present)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "verify the archive without writing")
	cmd.Flags().BoolVar(&opts.IgnoreUnknown, "ignore-unknown", false, "skip unknown archive entries")
	return cmd
}

func auditCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <archive>",
		Short: "Verify an archive offline, and against the registry when one is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			var reg registry.Registry
			if cfg.Registry.Backend != "" {
				r, closeFn, err := g.openRegistry(cfg)
				if err != nil {
					return err
				}
				defer closeFn()
				reg = r
			}

			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			out := cmd.OutOrStdout()
			ok := color.New(color.FgGreen).Sprint("ok")
			var n, mismatched int
			err = bundle.Walk(in, false, func(rec registry.Record) error {
				n++
				if reg == nil {
					fmt.Fprintf(out, "%s %s %s\n", ok, rec.Digest, rec.Owner)
					return nil
				}
				held, err := reg.Get(cmd.Context(), rec.Digest)
				if err != nil {
					return err
				}
				switch {
				case !held.Exists():
					mismatched++
					fmt.Fprintf(out, "%s %s\n", color.New(color.FgYellow).Sprint("missing"), rec.Digest)
				case !held.Equal(rec):
					mismatched++
					fmt.Fprintf(out, "%s %s archive=%s registry=%s\n", color.New(color.FgRed).Sprint("differs"), rec.Digest, rec.Ref, held.Ref)
				default:
					fmt.Fprintf(out, "%s %s %s\n", ok, rec.Digest, rec.Owner)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d records verified\n", n)
			if mismatched > 0 {
				return fmt.Errorf("%d records do not match the registry", mismatched)
			}
			return nil
		},
	}
}
