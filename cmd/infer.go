package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/configfile"
	"github.com/agentic-research/jflat/internal/infer"
)

var (
	inferOut    string
	inferArrays string
	inferSample int
	inferSeed   int64
)

func init() {
	inferCmd.Flags().StringVarP(&inferOut, "out", "o", "", "Write the drafted configuration here (.yaml or .json); default stdout as YAML")
	inferCmd.Flags().StringVar(&inferArrays, "arrays", "none", "Treatment of the most common array of objects: none, explode or preserve")
	inferCmd.Flags().IntVar(&inferSample, "sample", 1000, "Maximum number of records to sample")
	inferCmd.Flags().Int64Var(&inferSeed, "seed", 0, "Random seed for sampling")
	rootCmd.AddCommand(inferCmd)
}

var inferCmd = &cobra.Command{
	Use:   "infer [input]",
	Short: "Draft a configuration from sample records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseArrayMode(inferArrays)
		if err != nil {
			return err
		}
		cfg := infer.DefaultConfig()
		cfg.SampleSize = inferSample
		cfg.Seed = inferSeed
		cfg.Arrays = mode
		if actionField != "" {
			cfg.ActionTypeField = actionField
		}
		inf := infer.New(cfg)

		var f *configfile.File
		if strings.EqualFold(filepath.Ext(args[0]), ".db") {
			f, err = inf.InferFromSQLite(args[0])
		} else {
			f, err = inf.InferFromFile(args[0])
		}
		if err != nil {
			return err
		}

		data, err := configfile.Encode(inferOut, f)
		if err != nil {
			return err
		}
		if inferOut == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(inferOut, data, 0o644)
	},
}

func parseArrayMode(s string) (api.ArrayMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return api.ArrayModeNone, nil
	case "explode":
		return api.ArrayModeExplode, nil
	case "preserve":
		return api.ArrayModePreserve, nil
	default:
		return api.ArrayModeNone, fmt.Errorf("unknown array mode %q", s)
	}
}
