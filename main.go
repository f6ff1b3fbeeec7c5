package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"fitcrop/crop"
)

const configPath = "~/.config/fitcrop/config.json"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("fitcrop"),
		kong.Description("Crop clothing photos in the browser."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, configPath),
	)
	if err := cliCtx.Run(&args.Globals); err != nil {
		return err
	}

	return nil
}

type Globals struct {
	Config  kong.ConfigFlag `help:"Load configuration from a JSON file." placeholder:"PATH"`
	Verbose bool            `help:"Enable verbose logging" default:"false" env:"FITCROP_VERBOSE"`
	LogFile string          `help:"Write JSON logs to this file, rotated, instead of the console" env:"FITCROP_LOG_FILE" type:"path"`
}

// setupLogging configures the global zerolog logger and returns a context
// carrying it.
func (g *Globals) setupLogging(ctx context.Context) context.Context {
	level := zerolog.InfoLevel
	if g.Verbose {
		level = zerolog.DebugLevel
	}

	var out io.Writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr })
	if g.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   g.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 2,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	return log.Logger.WithContext(ctx)
}

type EditorFlags struct {
	MinSize         float64 `help:"Smallest crop side, in viewport units" default:"50" env:"FITCROP_MIN_SIZE"`
	InitialFraction float64 `help:"Initial crop side as a fraction of the shorter viewport side" default:"0.7" env:"FITCROP_INITIAL_FRACTION"`
	VerticalBias    float64 `help:"Initial crop position as a fraction of the free vertical space" default:"0.4" env:"FITCROP_VERTICAL_BIAS"`
}

func (f EditorFlags) options() crop.Options {
	return crop.Options{
		MinSize:         f.MinSize,
		InitialFraction: f.InitialFraction,
		VerticalBias:    f.VerticalBias,
	}
}

type serveCmd struct {
	RootDir   string `arg:"" help:"Root directory to serve files from" type:"existingdir"`
	OutputDir string `help:"Directory for cropped images (default: <root>/output)" env:"FITCROP_OUTPUT_DIR" type:"path"`
	Open      bool   `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	JSON      bool   `help:"Output saved operations in JSON format without executing"`
	Once      bool   `help:"Exit after the first save" default:"false"`

	EditorFlags `embed:""`
}

func (cmd *serveCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx = g.setupLogging(ctx)

	outputDir := cmd.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(cmd.RootDir, "output")
	}

	meta := fileMetadata{Root: cmd.RootDir}
	executor := &OperationExecutor{
		BaseDir:   cmd.RootDir,
		OutputDir: outputDir,
		Cropper:   NewImagingCropper(),
		Metadata:  meta,
	}
	sessions := NewSessionRegistry(meta, executor, cmd.options())

	app := NewWebApp(Config{
		RootDir:   cmd.RootDir,
		OutputDir: outputDir,
		Sessions:  sessions,
		Suggester: newSmartSuggester(cmd.RootDir),
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Int("open_sessions", sessions.Len()).Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
		OnSave: func(ops Operations) {
			if cmd.JSON {
				printJSONL(ops)
			} else {
				if err := executor.Exec(ctx, ops); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("Failed to execute operations")
				}
			}

			if cmd.Once {
				cancel()
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type cropCmd struct {
	File      string    `arg:"" help:"Image to crop" type:"existingfile"`
	Viewport  string    `help:"Viewport the image was shown in, as WIDTHxHEIGHT" required:""`
	Rect      []float64 `help:"Crop rectangle in viewport units: x,y,width,height" required:"" sep:","`
	Format    string    `help:"Output format: png, jpeg or webp" default:"png" enum:"png,jpg,jpeg,webp" env:"FITCROP_FORMAT"`
	OutputDir string    `help:"Directory for the cropped image (default: next to the input, in output/)" type:"path"`
	JSON      bool      `help:"Print the pixel region as JSON instead of cropping"`

	EditorFlags `embed:""`
}

func (cmd *cropCmd) Run(g *Globals) error {
	ctx := g.setupLogging(context.Background())

	viewport, err := parseSize(cmd.Viewport)
	if err != nil {
		return err
	}
	if len(cmd.Rect) != 4 {
		return fmt.Errorf("--rect needs 4 values, got %d", len(cmd.Rect))
	}
	rect := crop.Rect{X: cmd.Rect[0], Y: cmd.Rect[1], Width: cmd.Rect[2], Height: cmd.Rect[3]}
	format, err := crop.ParseFormat(cmd.Format)
	if err != nil {
		return err
	}

	dir, name := filepath.Dir(cmd.File), filepath.Base(cmd.File)
	meta := fileMetadata{Root: dir}

	outputDir := cmd.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(dir, "output")
	}
	executor := OperationExecutor{
		BaseDir:   dir,
		OutputDir: outputDir,
		Cropper:   NewImagingCropper(),
	}
	s, err := crop.NewSession(name, viewport, meta, executor, crop.SessionOptions{
		Editor: cmd.options(),
		Format: format,
	})
	if err != nil {
		return err
	}
	placed, err := s.Place(rect)
	if err != nil {
		return err
	}
	if placed != rect {
		log.Ctx(ctx).Warn().Stringer("rect", rect).Stringer("placed", placed).Msg("crop rectangle adjusted to editor limits")
	}

	if cmd.JSON {
		plan, err := planCrop(ctx, meta, s)
		if err != nil {
			return err
		}
		printJSONL([]cropPlan{plan})
		return nil
	}

	output, err := s.Commit(ctx)
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(outputDir, output))
	return nil
}

// cropPlan is what `crop --json` prints: the layout, the rectangle after the
// editor limits, and the pixel region a crop would write.
type cropPlan struct {
	Geometry crop.Geometry    `json:"geometry"`
	Rect     crop.Rect        `json:"rect"`
	Region   crop.PixelRegion `json:"region"`
}

// planCrop maps the current rectangle of s the same way Session.Commit does,
// without cropping.
func planCrop(ctx context.Context, meta crop.MetadataProvider, s *crop.Session) (cropPlan, error) {
	size, err := meta.IntrinsicSize(ctx, s.Handle())
	if err != nil {
		return cropPlan{}, err
	}
	geom, err := crop.ComputeGeometry(s.Viewport(), size)
	if err != nil {
		return cropPlan{}, err
	}
	rect := s.Rect()
	return cropPlan{Geometry: geom, Rect: rect, Region: crop.MapToPixels(rect, geom, size)}, nil
}

type cliArgs struct {
	Globals

	Serve serveCmd `cmd:"" default:"withargs" help:"Serve a directory of photos to the browser crop page"`
	Crop  cropCmd  `cmd:"" help:"Crop one image from a rectangle measured over its aspect-fit display"`
}

func parseSize(s string) (crop.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return crop.Size{}, fmt.Errorf("invalid size %q, want WIDTHxHEIGHT", s)
	}
	width, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil {
		return crop.Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	height, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil {
		return crop.Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	return crop.Size{Width: width, Height: height}, nil
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}
