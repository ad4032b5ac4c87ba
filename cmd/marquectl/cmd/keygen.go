package cmd

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/marquee/pkg/cryptox"
)

func newKeygenCmd() *cobra.Command {
	var (
		id   string
		size int
	)
	c := &cobra.Command{
		Use:   "keygen",
		Short: "Generate symmetric key material",
		Long: `Print a random key as "id=<base64>", the format used by keys.signing and
keys.secrets. Prepend the new entry to rotate: the first key signs or
encrypts and the rest remain valid for verification or decryption.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return errors.New("--id is required")
			}
			key, err := cryptox.GenerateSymmetricKey(size)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", id, base64.RawURLEncoding.EncodeToString(key))
			return nil
		},
	}
	c.Flags().StringVar(&id, "id", "", "Key id (e.g. s2 or v2)")
	c.Flags().IntVar(&size, "bytes", 32, "Key size in bytes (at least 32)")
	return c
}

func newHashCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Hash a password read from stdin",
		Long:  "Hash a password with the configured pepper, for seeding accounts by hand.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("empty password")
			}

			pepper, err := cryptox.LoadOrCreatePepper(opts.pepperFile)
			if err != nil {
				return err
			}
			hasher, err := cryptox.NewHasher(cryptox.DefaultScryptParams, pepper)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
