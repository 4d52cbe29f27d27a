package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file and list its action types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "action type field: %s\n", reg.ActionTypeField)
		for _, name := range reg.ActionTypes() {
			cfg, _ := reg.Lookup(name)
			fmt.Fprintf(out, "%s: %d fields, arrays=%s\n", name, len(cfg.Fields), cfg.ArrayMode())
			for _, w := range cfg.Warnings() {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
		}
		if def, ok := reg.Default(); ok {
			fmt.Fprintf(out, "default (%s): %d fields, arrays=%s\n", def.ActionType, len(def.Fields), def.ArrayMode())
			for _, w := range def.Warnings() {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
		}
		return nil
	},
}
