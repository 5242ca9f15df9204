package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/config"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/store"
)

var exercisesCmd = &cobra.Command{
	Use:   "exercises",
	Short: "Inspect the exercise catalog",
}

var listExercisesCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in, discovered and stored exercises",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		catalog, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		// One line per exercise; the configured default is starred
		out := cmd.OutOrStdout()
		bold := color.New(color.Bold).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		for _, e := range catalog.List() {
			marker := " "
			if e.Config.Name == cfg.Exercises.Default {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-16s %-8s %-8s %s\n", marker, bold(e.Config.Name), e.Config.Kind, cyan(e.Source), e.Config.Title)
		}
		return nil
	},
}

var validateExercisesCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check TOML exercise definitions and report every problem",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateFiles(cmd, args)
	},
}

func init() {
	exercisesCmd.AddCommand(listExercisesCmd, validateExercisesCmd)
	rootCmd.AddCommand(exercisesCmd)
}

// loadCatalog builds the catalog the server would use: built-ins, then the
// exercises directory, then stored overrides when the database exists.
func loadCatalog(cfg config.Config) (*exercise.Catalog, error) {
	appCfg := app.Config{
		Catalog:     exercise.NewCatalog(),
		ExerciseDir: cfg.Exercises.Dir,
		Exercise:    cfg.Exercises.Default,
	}

	// Listing must not create an empty database as a side effect
	if cfg.Database.Path != "" {
		if _, err := os.Stat(cfg.Database.Path); err == nil {
			st, err := store.New(cfg.Database.Path)
			if err != nil {
				return nil, err
			}
			defer st.Close()
			appCfg.Store = st
		}
	}

	sess, err := app.New(appCfg)
	if err != nil {
		return nil, err
	}
	return sess.Catalog(), nil
}

var errInvalidFiles = errors.New("some exercise definitions are invalid")

// validateFiles reports every problem of every file and fails if any file is
// invalid.
func validateFiles(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	failed := false
	for _, path := range paths {
		cfg, err := exercise.LoadFile(path)
		if err == nil {
			fmt.Fprintf(out, "%s %s (%s)\n", green("ok"), path, cfg.Name)
			continue
		}

		failed = true
		fmt.Fprintf(out, "%s %s\n", red("invalid"), path)
		var cfgErr *exercise.ConfigError
		if errors.As(err, &cfgErr) {
			for _, p := range cfgErr.Problems() {
				fmt.Fprintf(out, "    - %v\n", p)
			}
		} else {
			fmt.Fprintf(out, "    - %v\n", err)
		}
	}

	if failed {
		return errInvalidFiles
	}
	return nil
}
