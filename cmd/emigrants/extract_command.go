package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joe-chic/house-of-emmigrants/internal/ingest"
)

// newExtractCommand prints the candidate bag for one transcript without
// touching the database.
func newExtractCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the fields extracted from a transcript as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := ctx.library()
			if err != nil {
				return err
			}
			engine, err := ctx.engine(lib)
			if err != nil {
				return err
			}
			text, err := ingest.ReadTranscript(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(engine.ExtractDocument(args[0], text)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
