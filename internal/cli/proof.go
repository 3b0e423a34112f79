package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
)

// openInput opens path, with "-" meaning stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, model.WrapError(model.KindValidation, "cannot read "+path, err)
	}
	return f, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <file>...",
		Short: "Print the digest and CID of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				in, err := openInput(cmd, path)
				if err != nil {
					return err
				}
				d, err := fingerprint.SumReader(in)
				_ = in.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "%s  %s  %s\n", d, d.CID(), path)
			}
			return nil
		},
	}
}

func registerCmd(g *globals) *cobra.Command {
	var (
		note   string
		owner  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "register <file>",
		Short: "Register a file's fingerprint under the account",
		Long: `Register records the file's digest with the account as owner. A digest
can be registered once; later attempts fail and leave the record untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			svc, closeFn, err := g.writeService(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			in, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			res, err := svc.RegisterReader(cmd.Context(), in, owner, note)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen).Sprint("REGISTERED"), res.Digest)
			fmt.Fprintf(out, "  owner:      %s\n", res.Owner)
			fmt.Fprintf(out, "  record ref: %s\n", res.RecordRef)
			if res.Receipt != nil {
				fmt.Fprintf(out, "  receipt:    %s %s\n", res.Receipt.Scheme, res.Receipt.Signature)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note stored with the record")
	cmd.Flags().StringVar(&owner, "owner", "", "owner to record (default: the account address)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func verifyCmd(g *globals) *cobra.Command {
	var (
		digest string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check whether a file (or digest) is registered",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (digest == "") == (len(args) == 0) {
				return model.NewError(model.KindValidation, "pass exactly one of a file or --digest")
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			svc, closeFn, err := g.readService(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			var res model.VerifyResult
			if digest != "" {
				res, err = svc.VerifyDigest(cmd.Context(), digest)
			} else {
				var in io.ReadCloser
				in, err = openInput(cmd, args[0])
				if err != nil {
					return err
				}
				defer in.Close()
				res, err = svc.VerifyReader(cmd.Context(), in)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			if !res.Exists {
				fmt.Fprintf(out, "%s %s\n", color.New(color.FgYellow).Sprint("NOT REGISTERED"), res.Digest)
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen).Sprint("REGISTERED"), res.Digest)
			fmt.Fprintf(out, "  owner:      %s\n", res.Owner)
			fmt.Fprintf(out, "  registered: %s\n", time.Unix(res.Timestamp, 0).UTC().Format(time.RFC3339))
			if res.Note != "" {
				fmt.Fprintf(out, "  note:       %s\n", res.Note)
			}
			fmt.Fprintf(out, "  record ref: %s\n", res.RecordRef)
			return nil
		},
	}
	cmd.Flags().StringVar(&digest, "digest", "", "digest to look up instead of a file (0x + 64 hex)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
