package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/FrameExport/internal/api"
	"github.com/bryanchriswhite/FrameExport/internal/capture"
	"github.com/bryanchriswhite/FrameExport/internal/config"
	"github.com/bryanchriswhite/FrameExport/internal/exporter"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
	"github.com/bryanchriswhite/FrameExport/internal/output"
	"github.com/bryanchriswhite/FrameExport/internal/overlay"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Render frames and export them",
	Long: `Run a render loop at the configured frame rate and export every frame.

Frames are read from the selected source (a test pattern, a still image or the
X11 screen) and written by a background worker. "-" as the output writes the
PPM stream to stdout; logs always go to stderr.`,
	Example: `  # 90 frames of the test pattern to frameexport.ppm
  frameexport record

  # Pipe a PPM stream into ffmpeg
  frameexport record -o - --frames 300 | ffmpeg -f image2pipe -c:v ppm -i - out.mp4

  # Numbered PNG files
  frameexport record --format sequence -o shots/frame-%05d.png

  # Screen capture with a live preview on :8080
  frameexport record --source x11 --frames 0 --stream`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	f := recordCmd.Flags()
	f.StringP("output", "o", "", `output file, "-" for stdout, or a pattern for --format sequence`)
	f.String("format", "", "output format ("+strings.Join(output.Formats, ", ")+")")
	f.String("generator", "", "name written into PPM headers")
	f.Int("quality", 0, "JPEG quality (1-100)")
	f.Duration("shutdown-timeout", 0, "how long to wait for pending frames on exit")
	f.String("source", "", "frame source ("+strings.Join(capture.Kinds, ", ")+")")
	f.String("image", "", "image file for --source image")
	f.Int("width", 0, "frame width")
	f.Int("height", 0, "frame height")
	f.Int("fps", 0, "render loop frame rate")
	f.Int("frames", 0, "number of frames to export (0 runs until interrupted)")
	f.Bool("stream", false, "serve a live MJPEG preview and frame events")
	f.Int("port", 0, "preview server port")

	for key, flag := range map[string]string{
		"export.output":           "output",
		"export.format":           "format",
		"export.generator":        "generator",
		"export.quality":          "quality",
		"export.shutdown_timeout": "shutdown-timeout",
		"source.kind":             "source",
		"source.image_path":       "image",
		"source.width":            "width",
		"source.height":           "height",
		"source.fps":              "fps",
		"source.frames":           "frames",
		"stream.enabled":          "stream",
		"stream.port":             "port",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

func runRecord(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.WithComponent("record")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	overlays := overlay.NewManager()
	overlays.SetEnabled(cfg.Overlay.Enabled)
	overlays.LoadFromConfig(cfg.Overlay.Widgets)

	src, err := capture.New(cfg.Source, overlays)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()
	dims := src.Dimensions()

	hub := api.NewHub()
	opts := []exporter.Option{
		exporter.WithGenerator(cfg.Export.Generator),
		exporter.WithShutdownTimeout(cfg.Export.ShutdownTimeout),
		exporter.WithFrameHandler(hub.FrameWritten),
		exporter.WithErrorHandler(hub.FrameFailed),
	}

	var stream *output.MJPEGOutput
	if cfg.Stream.Enabled {
		stream = output.NewMJPEGOutput(dims, cfg.Export.Quality)
		if err := stream.Start(); err != nil {
			return err
		}
	}

	exp, err := openExporter(cfg, src, stream, opts)
	if err != nil {
		if stream != nil {
			stream.Stop()
		}
		return err
	}

	var server *api.Server
	if stream != nil {
		server = api.NewServer(configMgr, exp, stream, hub)
		go func() {
			if err := server.Start(cfg.Stream.Port); err != nil {
				log.Error().Err(err).Msg("Preview server failed")
			}
		}()
		log.Info().
			Str("viewer", fmt.Sprintf("http://localhost:%d/viewer", cfg.Stream.Port)).
			Msg("Live preview enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderErr := renderLoop(ctx, exp, cfg.Source)

	// Interrupts during shutdown fall back to the default handler
	stop()
	closeErr := exp.Close()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		server.Shutdown(shutdownCtx)
		cancel()
	}

	st := exp.Stats()
	log.Info().
		Uint64("requested", st.Requested).
		Uint64("written", st.Written).
		Uint64("failed", st.Failed).
		Msg("Recording finished")

	return errors.Join(renderErr, closeErr)
}

// openExporter builds the exporter for cfg. A plain PPM export goes
// through exporter.Open; anything else is built by the output factory.
func openExporter(cfg *config.Config, src capture.Source, stream *output.MJPEGOutput, opts []exporter.Option) (*exporter.Exporter, error) {
	dims := src.Dimensions()
	format := strings.ToLower(cfg.Export.Format)

	if (format == "" || format == "ppm") && stream == nil {
		return exporter.Open(dims, src, cfg.Export.Output, opts...)
	}

	out, err := output.New(output.Config{
		Dimensions: dims,
		Target:     cfg.Export.Output,
		Format:     format,
		Generator:  cfg.Export.Generator,
		Quality:    cfg.Export.Quality,
		FPS:        cfg.Source.FPS,
	})
	if err != nil {
		return nil, err
	}

	var writer output.Output = out
	if stream != nil {
		writer = output.Tee{out, stream}
	}

	exp, err := exporter.New(dims, src, writer, opts...)
	if err != nil {
		writer.Close()
		return nil, err
	}
	logger.WithComponent("record").Info().
		Str("output", writer.Name()).
		Str("target", cfg.Export.Output).
		Msg("Output ready")
	return exp, nil
}

// renderLoop calls Dump once per tick until the frame budget is spent or
// ctx is cancelled
func renderLoop(ctx context.Context, exp *exporter.Exporter, src config.SourceConfig) error {
	log := logger.WithComponent("record")
	ticker := time.NewTicker(src.FrameInterval())
	defer ticker.Stop()

	log.Info().
		Int("fps", src.FPS).
		Int("frames", src.Frames).
		Msg("Recording")

	for n := 0; src.Frames == 0 || n < src.Frames; n++ {
		select {
		case <-ctx.Done():
			log.Info().Int("frames", n).Msg("Interrupted")
			return nil
		case <-ticker.C:
		}

		if err := exp.Dump(); err != nil {
			if errors.Is(err, exporter.ErrStopped) {
				return err
			}
			log.Warn().Err(err).Int("frame", n).Msg("Frame skipped")
		}
	}
	return nil
}
