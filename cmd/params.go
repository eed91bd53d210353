package cmd

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/smazurov/streamgear/internal/params"
)

// CreateParamsCmd creates the params command.
func CreateParamsCmd() *cobra.Command {
	var write string
	var strict bool

	cmd := &cobra.Command{
		Use:   "params <file>",
		Short: "Normalize a session params file",
		Long: `Loads a TOML params file, reports every value that was replaced by its default ` +
			`and prints the normalized parameters. --write saves them; loading the saved file ` +
			`again reports nothing.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := params.LoadFile(args[0])
			if err != nil {
				return err
			}
			cfg, issues := params.Normalize(raw)

			out := cmd.OutOrStdout()
			for _, issue := range issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", issue)
			}

			data, err := toml.Marshal(cfg.ToMap())
			if err != nil {
				return err
			}
			fmt.Fprint(out, string(data))

			if write != "" {
				if err := params.SaveFile(write, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", write)
			}
			if strict && len(issues) > 0 {
				return fmt.Errorf("%d parameters were replaced by defaults", len(issues))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&write, "write", "w", "", "Save the normalized parameters to this file")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any parameter was replaced")
	return cmd
}
