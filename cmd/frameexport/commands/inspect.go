package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/FrameExport/internal/output"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "List the frames of a PPM stream",
	Long:  `Decode a stream of concatenated P6 frames and print one line per frame.`,
	Example: `  # Summarise a recording
  frameexport inspect frameexport.ppm

  # Read from stdin
  frameexport record -o - --frames 10 | frameexport inspect -

  # Save frame 3 as PNG
  frameexport inspect frameexport.ppm --extract 3 --out frame3.png`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	extractFlag int
	extractOut  string
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().IntVar(&extractFlag, "extract", -1, "index of a frame to save (0-based)")
	inspectCmd.Flags().StringVar(&extractOut, "out", "", "file for --extract; the extension picks the format")
}

func runInspect(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if args[0] != output.StdoutTarget {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	if extractFlag >= 0 && extractOut == "" {
		return errors.New("--extract needs --out")
	}

	n, err := inspectStream(in, cmd.OutOrStdout(), extractFlag, extractOut)
	if err != nil {
		return err
	}
	if extractFlag >= n {
		return fmt.Errorf("frame %d not found, stream has %d frames", extractFlag, n)
	}
	return nil
}

// inspectStream prints each frame in r and saves frame extract to path.
// It returns the number of frames read.
func inspectStream(r io.Reader, w io.Writer, extract int, path string) (int, error) {
	br := bufio.NewReader(r)
	n := 0
	var total int64
	for {
		f, err := output.DecodePPM(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("frame %d: %w", n, err)
		}

		fmt.Fprintf(w, "frame %d: %s, %d bytes", n, f.Dimensions, len(f.Pix))
		if len(f.Comments) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(f.Comments, "; "))
		}
		fmt.Fprintln(w)
		total += int64(len(f.Pix))

		if n == extract {
			if err := saveFrame(f, path); err != nil {
				return n, err
			}
		}
		n++
	}

	fmt.Fprintf(w, "%d frames, %d bytes of pixel data\n", n, total)
	return n, nil
}

func saveFrame(f *output.PPMFrame, path string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "ppm" {
		dst, err := output.ParseTarget(path).Open()
		if err != nil {
			return err
		}
		out := output.NewPPMOutput(dst, f.Dimensions, strings.TrimPrefix(firstOr(f.Comments, ""), "Generated by "))
		return errors.Join(out.WriteFrame(f.Pix), out.Close())
	}

	enc, err := output.EncoderFor(ext, 95)
	if err != nil {
		return err
	}
	dst, err := output.ParseTarget(path).Open()
	if err != nil {
		return err
	}
	out := output.NewImageOutput(dst, f.Dimensions, enc)
	return errors.Join(out.WriteFrame(f.Pix), out.Close())
}

func firstOr(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}
