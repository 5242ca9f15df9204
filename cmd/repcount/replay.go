package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/feed"
	"github.com/ayusman/repcount/internal/metrics"
)

var (
	replayExercise string
	replayQuiet    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a recorded NDJSON landmark stream and print the coaching feedback (\"-\" reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		name := cfg.Exercises.Default
		if replayExercise != "" {
			name = replayExercise
		}

		sess, err := app.New(app.Config{
			Catalog:     exercise.NewCatalog(),
			ExerciseDir: cfg.Exercises.Dir,
			Exercise:    name,
		})
		if err != nil {
			return err
		}
		if _, err := sess.SelectExercise(name); err != nil {
			return err
		}

		src, err := feed.Open(args[0])
		if err != nil {
			return err
		}
		defer src.Close()

		return replay(cmd, sess, src, replayQuiet)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayExercise, "exercise", "e", "", "Exercise to count (defaults to exercises.default)")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print repetitions and the summary")
	rootCmd.AddCommand(replayCmd)
}

// replay feeds every frame of src through sess as fast as possible and
// prints what happened.
func replay(cmd *cobra.Command, sess *app.Session, src feed.Source, quiet bool) error {
	out := cmd.OutOrStdout()
	p := &printer{out: out, quiet: quiet}

	skipped := 0
	for {
		frame, err := src.Next(cmd.Context())
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *feed.ParseError
		if errors.As(err, &parseErr) {
			skipped++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.YellowString("skipping"), parseErr)
			continue
		}
		if err != nil {
			return err
		}
		p.event(sess.Process(frame))
	}

	// Summary
	snap := sess.Snapshot()
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	fmt.Fprintf(out, "\n%s %s: %s valid, %d partial, %d attempts in %d frames\n",
		boldGreen("Done"), snap.Title, boldGreen(snap.Stats.ValidReps),
		snap.Stats.InvalidReps, snap.Stats.TotalAttempts, snap.Frames)
	if skipped > 0 {
		fmt.Fprintf(out, "%d malformed lines skipped\n", skipped)
	}
	return nil
}

// printer writes feedback as it changes, so steady phases print once.
type printer struct {
	out      io.Writer
	quiet    bool
	lastHint string
	warned   map[string]bool
}

var feedbackColors = map[exercise.FeedbackType]*color.Color{
	exercise.FeedbackError:   color.New(color.FgRed),
	exercise.FeedbackAssume:  color.New(color.FgYellow),
	exercise.FeedbackSuccess: color.New(color.FgGreen),
	exercise.FeedbackPhase:   color.New(color.FgCyan),
	exercise.FeedbackWarning: color.New(color.FgMagenta),
}

// paint colors a feedback message by its type.
func paint(f exercise.Feedback) string {
	if c, ok := feedbackColors[f.Type]; ok {
		return c.Sprint(f.Message)
	}
	return f.Message
}

// event prints one tick. Warnings and hints are printed when they first
// appear, phases on every transition.
func (p *printer) event(ev app.Event) {
	for _, w := range ev.Warnings {
		if p.warned == nil {
			p.warned = make(map[string]bool)
		}
		if !p.warned[w] {
			p.warned[w] = true
			fmt.Fprintln(p.out, color.New(color.FgYellow).Sprint("warning: "+w))
		}
	}

	if !p.quiet {
		if ev.Transition != nil {
			fmt.Fprintf(p.out, "%-11s %s\n", ev.Phase, paint(ev.Feedback))
		}
		hint := ""
		if ev.Hint != nil {
			hint = ev.Hint.Message
		}
		if hint != p.lastHint && hint != "" {
			fmt.Fprintf(p.out, "%-11s %s\n", "", paint(*ev.Hint))
		}
		p.lastHint = hint
	}

	// Reps are printed even in quiet mode
	if rep := ev.Rep; rep != nil {
		boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
		fmt.Fprintf(p.out, "%s  down %.2fs  up %.2fs\n",
			boldGreen(fmt.Sprintf("Rep %d", rep.Count)), rep.DownDuration, rep.UpDuration)

		keys := make([]string, 0, len(rep.Extremes))
		for k := range rep.Extremes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			v := rep.Extremes[k]
			parts = append(parts, metrics.Describe(k, &v))
		}
		if len(parts) > 0 {
			fmt.Fprintf(p.out, "       %s\n", strings.Join(parts, ", "))
		}
	}
}
