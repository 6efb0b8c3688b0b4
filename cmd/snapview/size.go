package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/snapview/internal/geometry"
)

var sizeCmd = &cobra.Command{
	Use:   "size SCREEN [CANDIDATE...]",
	Short: "Pick the preview or picture size for a screen",
	Long: `Print the candidate size the camera would use for a SCREEN of WxH.
Without candidates the configured camera sizes are used.`,
	Example: `  snapview size 1280x720 1920x1080 1280x720 640x480
  snapview size 2400x1080`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSize,
}

var focusCmd = &cobra.Command{
	Use:   "focus SCREEN X Y",
	Short: "Print the focus and metering regions for a tap",
	Long: `Map a tap at X,Y on a SCREEN of WxH into the normalized camera space
and print the focus and metering regions the camera would be given.`,
	Example: `  snapview focus 1280x720 640 360`,
	Args:    cobra.ExactArgs(3),
	RunE:    runFocus,
}

func init() {
	rootCmd.AddCommand(sizeCmd)
	rootCmd.AddCommand(focusCmd)
}

func runSize(cmd *cobra.Command, args []string) error {
	screen, err := parseScreen(args[0])
	if err != nil {
		return err
	}

	var candidates []geometry.Size
	if len(args) > 1 {
		for _, a := range args[1:] {
			s, err := geometry.ParseSize(a)
			if err != nil {
				return err
			}
			candidates = append(candidates, s)
		}
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if candidates, err = cfg.CandidateSizes(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, g := range geometry.GroupByRatio(candidates) {
		fmt.Fprintf(out, "ratio %.3f: %v\n", g[0].Ratio(), g)
	}

	selected, ok := geometry.SelectSize(screen, candidates)
	if !ok {
		return fmt.Errorf("no size fits screen %dx%d", screen.Width, screen.Height)
	}
	fmt.Fprintf(out, "selected: %s\n", selected)
	return nil
}

func runFocus(cmd *cobra.Command, args []string) error {
	screen, err := parseScreen(args[0])
	if err != nil {
		return err
	}

	var x, y float64
	if _, err := fmt.Sscanf(args[1], "%g", &x); err != nil {
		return fmt.Errorf("invalid x %q", args[1])
	}
	if _, err := fmt.Sscanf(args[2], "%g", &y); err != nil {
		return fmt.Errorf("invalid y %q", args[2])
	}

	focus, metering := geometry.FocusAreas(screen, x, y)
	fmt.Fprintf(cmd.OutOrStdout(), "focus:    %s\n", focus)
	fmt.Fprintf(cmd.OutOrStdout(), "metering: %s\n", metering)
	return nil
}

// parseScreen parses a WxH surface size in either orientation.
func parseScreen(v string) (geometry.ScreenSize, error) {
	s, err := geometry.ParseSize(v)
	if err != nil {
		return geometry.ScreenSize{}, err
	}
	return geometry.NewScreenSize(s.Width, s.Height), nil
}
