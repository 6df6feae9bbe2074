package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"github.com/viant/afs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"winemodel/config"
	"winemodel/dataset"
	"winemodel/db"
	whttp "winemodel/http"
	"winemodel/logging"
	"winemodel/modelstore"
	"winemodel/monitoring"
	"winemodel/pipeline"
	"winemodel/predict"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	configPath     string
	logLevel       string
	modelPath      string
	modelKind      string
	seed           int64
	inputPath      string
	dropped        cli.StringSlice
	trainIfMissing bool
)

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:        "config",
		Usage:       "Path to a yaml config file; defaults apply when omitted",
		Aliases:     []string{"c"},
		Destination: &configPath,
		EnvVars:     []string{"WINEMODEL_CONFIG"},
	},
	&cli.StringFlag{
		Name:        "log-level",
		Usage:       "Override log.level (debug, info, warn, error)",
		Destination: &logLevel,
	},
}

var modelFlags = []cli.Flag{
	&cli.StringFlag{
		Name:        "model",
		Usage:       "Model artifact path or URL, overrides model.path",
		Aliases:     []string{"m"},
		Destination: &modelPath,
	},
	&cli.StringFlag{
		Name:        "kind",
		Usage:       "Model kind: decision_tree, random_forest or adaboost",
		Aliases:     []string{"k"},
		Destination: &modelKind,
	},
	&cli.Int64Flag{
		Name:        "seed",
		Usage:       "Seed for the data split and the model, overrides the config",
		Destination: &seed,
	},
}

// settings loads the config file and applies command line overrides.
func settings(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if modelKind != "" {
		cfg.Model.Kind = modelKind
	}
	if c.IsSet("seed") {
		cfg.Dataset.Seed = seed
		cfg.Model.Params.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var demoCommand = &cli.Command{
	Name:  "demo",
	Usage: "Train, save, reload and predict the example wine sample",
	Description: `demo runs the whole workflow once: load the dataset, split it, fit the
configured ensemble, score it, save the artifact, load it back and predict a
hand-built sample. The prediction is printed as {"prediction": k}. When the
sample lacks a feature the diagnostic line is printed instead.`,
	Flags: append(append([]cli.Flag{}, modelFlags...),
		&cli.StringSliceFlag{
			Name:        "drop",
			Usage:       "Feature to remove from the example sample (repeatable)",
			Destination: &dropped,
		},
	),
	Action: func(c *cli.Context) error {
		cfg, logger, err := settings(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		opts := pipeline.OptionsFromConfig(cfg)
		opts.Example = pipeline.ExampleRequest()
		for _, name := range dropped.Value() {
			delete(opts.Example, name)
		}

		out := c.App.Writer
		report, err := pipeline.NewRunner(modelstore.NewStore(), logger, out).Run(c.Context, opts)
		if err != nil {
			return err
		}
		if report.Prediction == nil {
			return nil
		}
		return writeJSON(out, report.Prediction)
	},
}

var trainCommand = &cli.Command{
	Name:  "train",
	Usage: "Fit a model, print its evaluation and save it",
	Flags: modelFlags,
	Action: func(c *cli.Context) error {
		cfg, logger, err := settings(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		result, err := pipeline.NewRunner(modelstore.NewStore(), logger, c.App.ErrWriter).Train(c.Context, pipeline.OptionsFromConfig(cfg))
		if err != nil {
			return err
		}
		if cfg.Database.Path != "" {
			if err := db.InitDB(cfg.Database.Path); err != nil {
				return err
			}
			defer db.Close()
			if err := db.SaveTrainingRun(result.Record()); err != nil {
				return err
			}
		}
		return writeJSON(c.App.Writer, map[string]interface{}{
			"run_id":     result.RunID,
			"model_id":   result.Artifact.ID,
			"kind":       result.Artifact.Kind,
			"path":       result.ModelPath,
			"evaluation": result.Evaluation,
			"cleaning":   result.Cleaning,
		})
	},
}

var predictCommand = &cli.Command{
	Name:  "predict",
	Usage: "Predict the class of one sample with a saved model",
	Description: `predict reads a JSON object mapping the thirteen feature names to numbers
from --input (a path or URL) or stdin, and prints {"prediction": k}.`,
	Flags: append(append([]cli.Flag{}, modelFlags...),
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path or URL of the JSON sample, - for stdin",
			Aliases:     []string{"i"},
			Destination: &inputPath,
			Value:       "-",
		},
	),
	Action: func(c *cli.Context) error {
		cfg, logger, err := settings(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		var raw []byte
		if inputPath == "-" {
			raw, err = io.ReadAll(c.App.Reader)
		} else {
			raw, err = afs.New().DownloadWithURL(c.Context, inputPath)
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		var req predict.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("parse input: %w", err)
		}

		artifact, err := modelstore.NewStore().Load(c.Context, cfg.Model.Path)
		if err != nil {
			return err
		}
		predictor, err := predict.NewPredictor(artifact)
		if err != nil {
			return err
		}
		resp, ok, err := predict.Shape(c.Context, predictor, req, c.App.Writer)
		if err != nil || !ok {
			return err
		}
		return writeJSON(c.App.Writer, resp)
	},
}

var describeCommand = &cli.Command{
	Name:  "describe",
	Usage: "Print per-feature statistics of the configured dataset",
	Action: func(c *cli.Context) error {
		cfg, logger, err := settings(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ds, err := pipeline.LoadDataset(c.Context, pipeline.OptionsFromConfig(cfg))
		if err != nil {
			return err
		}
		summary, err := dataset.Describe(ds)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "feature\tmean\tstd\tmin\tmax")
		for _, f := range summary.Features {
			fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%.3f\n", f.Name, f.Mean, f.Std, f.Min, f.Max)
		}
		w.Flush()

		classes := make([]string, 0, len(summary.ClassCounts))
		for name := range summary.ClassCounts {
			classes = append(classes, name)
		}
		sort.Strings(classes)
		parts := make([]string, len(classes))
		for i, name := range classes {
			parts[i] = fmt.Sprintf("%s=%d", name, summary.ClassCounts[name])
		}
		fmt.Fprintf(c.App.Writer, "\n%d samples: %s\n", summary.Samples, strings.Join(parts, " "))
		return nil
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve predictions over HTTP",
	Flags: append(append([]cli.Flag{}, modelFlags...),
		&cli.BoolFlag{
			Name:        "train-if-missing",
			Usage:       "Train and save a model when none exists at the model path",
			Destination: &trainIfMissing,
			Value:       true,
		},
	),
	Action: func(c *cli.Context) error {
		cfg, logger, err := settings(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Database.Path != "" {
		if err := db.InitDB(cfg.Database.Path); err != nil {
			return err
		}
		defer db.Close()
		logger.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	store := modelstore.NewStore()
	cache, err := modelstore.NewCache(store, cfg.Model.CacheSize, logger)
	if err != nil {
		return err
	}
	hub := monitoring.NewHub(logger)
	runner := pipeline.NewRunner(store, logger, io.Discard)
	api := whttp.NewAPI(whttp.APIConfig{
		Cache:  cache,
		Runner: runner,
		Train:  pipeline.OptionsFromConfig(cfg),
		Hub:    hub,
		Logger: logger,
	})

	if err := loadInitialModel(ctx, cfg, store, runner, api, logger); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	if _, local := modelstore.LocalPath(cfg.Model.Path); cfg.Model.Watch && local {
		watcher, err := modelstore.NewWatcher(cfg.Model.Path, func() {
			if err := api.ReloadModel(ctx, cfg.Model.Path); err != nil {
				logger.Warn("model reload failed", zap.String("path", cfg.Model.Path), zap.Error(err))
			}
		}, logger)
		if err != nil {
			return err
		}
		group.Go(func() error { return watcher.Run(ctx) })
	}

	server := whttp.NewServer(whttp.ServerConfigFrom(cfg.HTTP), api, logger)
	group.Go(server.Start)
	group.Go(func() error {
		<-ctx.Done()
		return server.Stop(context.Background())
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("exiting")
	return nil
}

func loadInitialModel(ctx context.Context, cfg *config.Config, store *modelstore.Store, runner *pipeline.Runner, api *whttp.API, logger *zap.Logger) error {
	exists, err := store.Exists(ctx, cfg.Model.Path)
	if err != nil {
		return err
	}
	if exists {
		return api.ReloadModel(ctx, cfg.Model.Path)
	}
	if !trainIfMissing {
		logger.Warn("no model at path, predictions return 503 until one is trained", zap.String("path", cfg.Model.Path))
		return nil
	}

	result, err := runner.Train(ctx, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	if db.Enabled() {
		if err := db.SaveTrainingRun(result.Record()); err != nil {
			logger.Warn("save training run failed", zap.Error(err))
		}
	}
	return api.SetArtifact(result.Artifact)
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "winemodel",
		Usage: "Train and serve wine cultivar classifiers",
		Flags: globalFlags,
		Commands: []*cli.Command{
			demoCommand,
			trainCommand,
			predictCommand,
			serveCommand,
			describeCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
