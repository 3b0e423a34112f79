package cli

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/origin/keys"
)

func keyCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage account keys",
	}
	cmd.AddCommand(keyInitCmd(g), keyShowCmd(g), keyListCmd(g))
	return cmd
}

func keyInitCmd(g *globals) *cobra.Command {
	var (
		name          string
		seedHex       string
		force         bool
		passphraseEnv string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an account key in the key store",
		Long: `Init stores a new (or given) 32 byte seed as <name>.key. When the
environment variable named by --passphrase-env is set, the file is sealed
with age using that passphrase.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			var seed []byte
			if seedHex != "" {
				seed, err = keys.ParseSeedHex(seedHex)
			} else {
				seed, err = keys.GenerateSeed(rand.Reader)
			}
			if err != nil {
				return err
			}
			acct, path, err := ks.Init(name, seed, os.Getenv(passphraseEnv), force)
			if err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("key %q already exists (use --force to overwrite)", name)
				}
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: %s\n", acct.Address())
			fmt.Fprintf(out, "file:    %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "default", "key name")
	cmd.Flags().StringVar(&seedHex, "from-seed", "", "use this seed (64 hex chars) instead of a random one")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	cmd.Flags().StringVar(&passphraseEnv, "passphrase-env", defaultPassphraseEnv, "environment variable holding the key file passphrase")
	return cmd
}

func keyShowCmd(g *globals) *cobra.Command {
	var (
		name          string
		passphraseEnv string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print an account's address and public keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			acct, err := ks.Load(name, os.Getenv(passphraseEnv))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", name)
			fmt.Fprintf(out, "address: %s\n", acct.Address())
			for _, scheme := range []string{keys.SchemeEd25519, keys.SchemeDilithium3} {
				s, err := acct.NewSigner(scheme)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pubkey:  %s\n", s.PublicKey())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "default", "key name")
	cmd.Flags().StringVar(&passphraseEnv, "passphrase-env", defaultPassphraseEnv, "environment variable holding the key file passphrase")
	return cmd
}

func keyListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keys in the key store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			names, err := ks.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
