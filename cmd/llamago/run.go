package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamago/internal/engine"
	"github.com/samcharles93/llamago/internal/inference"
	"github.com/samcharles93/llamago/internal/logger"
)

const defaultPrompt = "How many helicopters can a human eat in one sitting?"

func runCmd() *cli.Command {
	var (
		req    = engine.DefaultRequest(defaultPrompt)
		hidden int
		stream bool
	)

	flags := append(variantFlags(), samplingFlags(&req)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text; omit on a terminal for interactive mode",
			Value:       defaultPrompt,
			Destination: &req.Prompt,
		},
		&cli.BoolFlag{
			Name:        "stream",
			Usage:       "print text as it is generated",
			Destination: &stream,
		},
		&cli.IntFlag{
			Name:        "hidden",
			Usage:       "embedding width of the model backend",
			Destination: &hidden,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate text from a prompt",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyRunConfig(c, cfg, &req)
			log := logger.FromContext(ctx)

			v, err := resolveVariant(variantName, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			resolver, err := newResolver(cacheDir, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: cache dir: %v", err), 1)
			}

			loadStart := time.Now()
			eng, err := engine.Loader{Resolver: resolver, Hidden: hidden}.Load(ctx, v)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load %s: %v", v, err), 1)
			}
			log.Info("loaded", "variant", v.String(), "took", time.Since(loadStart))

			if c.IsSet("prompt") || !stdinIsTTY() {
				if err := generateOnce(ctx, eng, req, os.Stdout, stream); err != nil {
					return cli.Exit(fmt.Sprintf("error: generation: %v", err), 1)
				}
				return nil
			}
			return interactive(ctx, eng, req, stream)
		},
	}
}

// interactive reads prompts until /exit or end of input.
func interactive(ctx context.Context, eng *engine.Engine, req engine.Request, stream bool) error {
	_, _ = fmt.Fprintln(os.Stderr, "Interactive mode. Type /exit to quit.")
	for {
		line, err := readInteractiveLine(">>> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return cli.Exit(fmt.Sprintf("error: read prompt: %v", err), 1)
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}
		req.Prompt = line
		if err := generateOnce(ctx, eng, req, os.Stdout, stream); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_, _ = fmt.Fprintln(os.Stderr, "error: generation:", err)
		}
	}
}

// generateOnce runs req and prints the text followed by throughput and wall
// time.
func generateOnce(ctx context.Context, eng *engine.Engine, req engine.Request, w io.Writer, stream bool) error {
	var streamFn inference.StreamFunc
	if stream {
		_, _ = fmt.Fprint(w, "> ")
		streamFn = func(s string) { _, _ = fmt.Fprint(w, s) }
	}

	out, err := eng.Generate(ctx, req, streamFn)
	if err != nil {
		if stream {
			_, _ = fmt.Fprintln(w)
		}
		return err
	}
	if stream {
		_, _ = fmt.Fprintln(w)
	} else {
		_, _ = fmt.Fprintf(w, "> %s\n", out.Text)
	}
	printStats(w, out)
	return nil
}

func printStats(w io.Writer, out *inference.Output) {
	_, _ = fmt.Fprintf(w, "%d tokens generated (%.4f tokens/s)\n", out.TokenCount, out.TokensPerSecond())
	secs := int64(out.ElapsedSeconds())
	_, _ = fmt.Fprintf(w, "Generation completed in %dm%ds\n", secs/60, secs%60)
}
