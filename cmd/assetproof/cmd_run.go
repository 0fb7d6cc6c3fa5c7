package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coachpo/assetproof/internal/app/report"
	"github.com/coachpo/assetproof/internal/domain/schema"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		input  string
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one invocation and print its public record",
		Example: `  assetproof run --input invocation.json
  assetproof run --input - --format table < invocation.json
  assetproof run --input invocation.json --output record.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != formatJSON && format != formatTable {
				return fmt.Errorf("unknown format %q (expected json or table)", format)
			}
			raw, err := readInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			record, err := app.assembler.Process(ctx, raw)
			if err != nil {
				return err
			}
			if store := app.recordStore(); store != nil {
				entry, err := store.Save(ctx, record)
				if err != nil {
					return fmt.Errorf("persist record: %w", err)
				}
				app.logger.Info().Str("id", entry.ID.String()).Str("digest", entry.Digest).Msg("record stored")
			}
			return writeRecord(cmd.OutOrStdout(), output, format, record)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Invocation JSON file, or - for stdin")
	cmd.Flags().StringVar(&output, "output", "", "Write the record to this file instead of stdout")
	cmd.Flags().StringVar(&format, "format", formatJSON, "Output format: json or table")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return raw, nil
}

func writeRecord(stdout io.Writer, path, format string, record schema.PublicRecord) error {
	var buf bytes.Buffer
	if format == formatTable {
		if err := report.WriteTable(&buf, record); err != nil {
			return err
		}
	} else {
		encoded, err := record.Encode()
		if err != nil {
			return err
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	if path != "" {
		return writeFile(path, buf.Bytes())
	}
	if _, err := stdout.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
