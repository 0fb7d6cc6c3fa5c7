package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coachpo/assetproof/internal/infra/attestation"
)

func newSignCmd() *cobra.Command {
	var (
		keyHex string
		input  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a development attestation envelope",
		Long: `sign stamps the signer address as attestor on every record of an unsigned envelope and
signs it. Without --key a throwaway key is generated and reported on stderr.`,
		Example: `  assetproof sign --key 4c0883a6... --input envelope.json > signed.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := resolveSigner(keyHex)
			if err != nil {
				return err
			}
			if strings.TrimSpace(keyHex) == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "generated key %s (attestor %s)\n", signer.KeyHex(), signer.Address())
			}

			raw, err := readInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			env, err := attestation.DecodeEnvelope(raw)
			if err != nil {
				return err
			}
			blob, err := signer.SealBlob(env)
			if err != nil {
				return err
			}
			return writeBlob(cmd, output, blob)
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "Hex secp256k1 private key (generated when empty)")
	cmd.Flags().StringVar(&input, "input", "-", "Unsigned envelope JSON file, or - for stdin")
	cmd.Flags().StringVar(&output, "output", "", "Write the signed envelope to this file instead of stdout")
	return cmd
}

func resolveSigner(keyHex string) (*attestation.Signer, error) {
	if strings.TrimSpace(keyHex) == "" {
		return attestation.GenerateSigner()
	}
	return attestation.ParseSigner(keyHex)
}

func writeBlob(cmd *cobra.Command, path, blob string) error {
	if path == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), blob)
		return err
	}
	return writeFile(path, []byte(blob+"\n"))
}
