package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamago/internal/engine"
)

var (
	variantName string
	cacheDir    string
	configFile  string
	logLevel    string
	logFormat   string
	debug       bool

	// cfg is the loaded config file, zero when there is none.
	cfg Config
)

func variantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "variant",
			Aliases:     []string{"model", "m"},
			Usage:       "pretrained variant (llama3, tinyllama); prompts on a terminal when unset",
			Destination: &variantName,
		},
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "directory holding downloaded artifacts",
			Sources:     cli.EnvVars(envCacheDir),
			Destination: &cacheDir,
		},
	}
}

// samplingFlags binds the generation knobs of req.
func samplingFlags(req *engine.Request) []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature; 0 decodes greedily",
			Value:       engine.DefaultTemperature,
			Destination: &req.Temperature,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"top_p", "topp"},
			Usage:       "nucleus sampling threshold in (0, 1]",
			Value:       engine.DefaultTopP,
			Destination: &req.TopP,
		},
		&cli.IntFlag{
			Name:        "max-seq-len",
			Aliases:     []string{"max-context", "ctx"},
			Usage:       "stop once prompt plus output reaches this many tokens (0 = unlimited)",
			Value:       engine.DefaultMaxContext,
			Destination: &req.MaxContext,
		},
		&cli.IntFlag{
			Name:        "sample-len",
			Aliases:     []string{"n", "steps"},
			Usage:       "maximum number of new tokens",
			Value:       engine.DefaultMaxNewTokens,
			Destination: &req.MaxNewTokens,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "sampler seed",
			Value:       engine.DefaultSeed,
			Destination: &req.Seed,
		},
		&cli.BoolFlag{
			Name:        "chat",
			Usage:       "wrap the prompt in the variant's chat template",
			Destination: &req.Chat,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
