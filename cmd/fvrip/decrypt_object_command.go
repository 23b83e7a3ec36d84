package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fvrip/internal/fvcrypt"
)

func newDecryptObjectCommand(ctx *commandContext) *cobra.Command {
	var (
		accessCode string
		chapter    int
		page       int
		object     int
	)

	cmd := &cobra.Command{
		Use:         "decrypt-object <input> <output>",
		Short:       "Decrypt a single cached object to a file",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if accessCode == "" {
				return fmt.Errorf("--code is required")
			}
			encrypted, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			passphrase := fvcrypt.ObjectPassphrase(accessCode, chapter, page, object)
			plain, err := fvcrypt.DecryptObjectBytes(passphrase, encrypted)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], plain, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", args[1], len(plain))
			return nil
		},
	}

	cmd.Flags().StringVar(&accessCode, "code", "", "Book access code")
	cmd.Flags().IntVar(&chapter, "chapter", 0, "Object chapter index")
	cmd.Flags().IntVar(&page, "page", 0, "Object page index")
	cmd.Flags().IntVar(&object, "object", 0, "Object index within the page")
	return cmd
}
