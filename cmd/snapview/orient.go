package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/snapview/internal/geometry"
	"github.com/ayusman/snapview/internal/picture"
)

var orientCmd = &cobra.Command{
	Use:   "orient FILE...",
	Short: "Apply a capture transform to image files",
	Long: `Rotate and mirror image files the way a capture is corrected before it is
saved. The transform is resolved from the camera mount orientation, the device
rotation and the rotation sensed from the accelerometer, or given directly
with --rotation and --mirror.`,
	Example: `  snapview orient --mount 90 --sensor-rotation 270 --out fixed/ *.jpg
  snapview orient --front --mount 270 --format webp shot.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOrient,
}

func init() {
	rootCmd.AddCommand(orientCmd)

	orientCmd.Flags().Int("mount", 0, "Camera sensor mount orientation in degrees")
	orientCmd.Flags().Int("device-rotation", 0, "Device rotation in degrees")
	orientCmd.Flags().Int("sensor-rotation", 0, "Rotation sensed from the accelerometer in degrees")
	orientCmd.Flags().Bool("front", false, "Pictures come from a front camera")
	orientCmd.Flags().Int("rotation", -1, "Clockwise rotation to apply directly (0, 90, 180, 270)")
	orientCmd.Flags().Bool("mirror", false, "Mirror horizontally; only with --rotation")
	orientCmd.Flags().String("out", "", "Output directory (default: next to each input)")
	orientCmd.Flags().String("format", "", "Output format: jpeg, png or webp (default: same as input)")
	orientCmd.Flags().Int("quality", 95, "JPEG and WebP quality")
	orientCmd.Flags().Int("concurrency", 4, "Number of files processed in parallel")
}

func runOrient(cmd *cobra.Command, args []string) error {
	t, err := orientTransform(cmd)
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out")
	formatFlag, _ := cmd.Flags().GetString("format")
	quality, _ := cmd.Flags().GetInt("quality")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	var format picture.Format
	if formatFlag != "" {
		if format, err = picture.ParseFormat(formatFlag); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Transform: rotation %d, mirror %v\n", t.RotationDeg, t.MirrorX)

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Orienting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var (
		failures []string
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, concurrency)

	for _, path := range args {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := orientFile(path, outDir, format, quality, t); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
			}
			bar.Add(1)
		}(path)
	}
	wg.Wait()
	bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	for _, f := range failures {
		fmt.Fprintln(cmd.ErrOrStderr(), f)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Oriented %d of %d files\n", len(args)-len(failures), len(args))
	if len(failures) > 0 {
		return fmt.Errorf("%d files failed", len(failures))
	}
	return nil
}

// orientTransform resolves the transform from the command flags.
func orientTransform(cmd *cobra.Command) (geometry.CaptureTransform, error) {
	rotation, _ := cmd.Flags().GetInt("rotation")
	if rotation >= 0 {
		if rotation%90 != 0 || rotation >= 360 {
			return geometry.CaptureTransform{}, fmt.Errorf("--rotation must be 0, 90, 180 or 270")
		}
		mirror, _ := cmd.Flags().GetBool("mirror")
		return geometry.CaptureTransform{RotationDeg: rotation, MirrorX: mirror}, nil
	}

	mount, _ := cmd.Flags().GetInt("mount")
	device, _ := cmd.Flags().GetInt("device-rotation")
	sensorRot, _ := cmd.Flags().GetInt("sensor-rotation")
	front, _ := cmd.Flags().GetBool("front")

	display := geometry.ResolveDisplayRotation(device, mount, front)
	return geometry.ResolveCaptureTransform(display, sensorRot, front), nil
}

// orientFile decodes path, applies t and writes the result into outDir with
// the "-oriented" suffix, or next to the input when outDir is empty.
func orientFile(path, outDir string, format picture.Format, quality int, t geometry.CaptureTransform) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img, err := picture.Decode(data)
	if err != nil {
		return err
	}

	ext := filepath.Ext(path)
	if format == "" {
		if format, err = picture.ParseFormat(strings.TrimPrefix(ext, ".")); err != nil {
			return err
		}
	}

	dir := outDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	name := strings.TrimSuffix(filepath.Base(path), ext) + "-oriented" + format.Ext()

	return picture.Save(filepath.Join(dir, name), picture.Apply(img, t), format, quality)
}
