package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("cropframe"),
		kong.Description("Frame photos with pan and pinch, then crop and compress them under a size budget."),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(&args.globals); err != nil {
		return err
	}

	return nil
}

type globals struct {
	Verbose bool   `help:"Enable verbose logging" default:"false"`
	Classes string `help:"YAML file overriding or adding asset classes" env:"CROPFRAME_CLASSES" type:"existingfile"`
}

type cliArgs struct {
	globals

	Serve    serveCmd    `cmd:"" default:"withargs" help:"Serve the interactive crop UI"`
	Crop     cropCmd     `cmd:"" help:"Replay a recorded gesture stream against an image and write the result"`
	Profiles profilesCmd `cmd:"" help:"Print the asset class registry as JSON lines"`
}

// setup configures logging and loads the registry.
func (g *globals) setup() (context.Context, *Registry, error) {
	level := zerolog.InfoLevel
	if g.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	ctx := log.Logger.WithContext(context.Background())

	if g.Classes == "" {
		return ctx, DefaultRegistry(), nil
	}
	registry, err := LoadRegistry(g.Classes)
	if err != nil {
		return nil, nil, err
	}
	log.Ctx(ctx).Debug().Str("file", g.Classes).Msg("loaded asset classes")
	return ctx, registry, nil
}

type serveCmd struct {
	RootDir string `arg:"" help:"Root directory to serve images from"`
	Out     string `help:"Directory for finished assets (default: ROOT/output)"`
	Open    bool   `help:"Open the browser automatically when the server starts" default:"true"`
	Once    bool   `help:"Exit after the first asset is saved" default:"false"`
}

func (cmd *serveCmd) Run(g *globals) error {
	ctx, registry, err := g.setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	outDir := cmd.Out
	if outDir == "" {
		outDir = filepath.Join(cmd.RootDir, "output")
	}

	sessions := NewSessionStore(NewPipeline(), FileSink{Dir: outDir})
	sessions.OnFinish = func(v SessionView) {
		if v.Status != StatusDone {
			return
		}
		if v.Degraded {
			log.Ctx(ctx).Warn().Str("session", v.ID).Int("final_bytes", v.Result.FinalBytes).Msg("Asset is over its size budget")
		}
		if cmd.Once {
			cancel()
		}
	}

	app := NewWebApp(Config{
		RootDir:   cmd.RootDir,
		OutputDir: outDir,
		Registry:  registry,
		Sessions:  sessions,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
	})

	return app.Run(ctx)
}

type cropCmd struct {
	File   string `arg:"" help:"Source image" type:"existingfile"`
	Class  string `help:"Asset class" default:"generic"`
	Events string `help:"JSON lines file of gesture events, '-' for stdin; omit to crop the initial framing"`
	Out    string `help:"Output directory" default:"output"`
}

func (cmd *cropCmd) Run(g *globals) error {
	ctx, registry, err := g.setup()
	if err != nil {
		return err
	}

	class, err := registry.Lookup(cmd.Class)
	if err != nil {
		return err
	}
	asset, err := OpenAsset(cmd.File)
	if err != nil {
		return err
	}

	events, err := cmd.readEvents()
	if err != nil {
		return err
	}

	reducer := NewGestureReducer(NewClampPolicy(class.Frame, asset.PixelWidth, asset.PixelHeight))
	state := reducer.ApplyAll(events)
	log.Ctx(ctx).Info().
		Str("file", cmd.File).
		Str("class", class.ID).
		Int("events", len(events)).
		Stringer("state", state).
		Msg("framing replayed")

	result, err := NewPipeline().Run(ctx, asset, state, class)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	if result.Degraded(class.Budget) {
		log.Ctx(ctx).Warn().
			Int("final_bytes", result.FinalBytes).
			Int("target_bytes", class.Budget.TargetBytes).
			Msg("Asset is over its size budget")
	}

	_, err = FileSink{Dir: cmd.Out}.Upload(ctx, cmd.File, result.Asset)
	return err
}

func (cmd *cropCmd) readEvents() ([]GestureEvent, error) {
	if cmd.Events == "" {
		return nil, nil
	}

	var r io.Reader = os.Stdin
	if cmd.Events != "-" {
		f, err := os.Open(cmd.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to open events file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeEvents(r)
}

// decodeEvents reads a stream of JSON gesture objects.
func decodeEvents(r io.Reader) ([]GestureEvent, error) {
	var events []GestureEvent
	dec := json.NewDecoder(r)
	for {
		var ev GestureEvent
		err := dec.Decode(&ev)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read gesture %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
}

type profilesCmd struct{}

func (cmd *profilesCmd) Run(g *globals) error {
	_, registry, err := g.setup()
	if err != nil {
		return err
	}
	printJSONL(registry.List())
	return nil
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
