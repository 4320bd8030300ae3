package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/pretrained"
)

func pullCmd() *cli.Command {
	var all bool

	return &cli.Command{
		Name:      "pull",
		Usage:     "Download the weights and tokenizer of pretrained variants",
		ArgsUsage: "[variant...]",
		Flags: append(variantFlags(),
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "pull every known variant",
				Destination: &all,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyVariantConfig(c, cfg)
			log := logger.FromContext(ctx)

			var targets []pretrained.Variant
			switch {
			case all:
				targets = pretrained.Variants()
			case c.Args().Len() > 0:
				for _, name := range c.Args().Slice() {
					v, err := pretrained.ParseVariant(name)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %v", err), 1)
					}
					targets = append(targets, v)
				}
			default:
				v, err := resolveVariant(variantName, os.Stdin, os.Stderr)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				targets = []pretrained.Variant{v}
			}

			resolver, err := newResolver(cacheDir, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: cache dir: %v", err), 1)
			}

			for _, v := range targets {
				if _, err := resolver.Resolve(ctx, v); err != nil {
					return cli.Exit(fmt.Sprintf("error: pull %s: %v", v, err), 1)
				}
				arts, err := resolver.Artifacts(v.Pretrained())
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				fmt.Printf("%s:\n", v)
				for _, a := range arts {
					fmt.Printf("  %-9s %8s  %s\n", a.Role, humanize.Bytes(uint64(a.Size)), a.Path)
				}
			}
			return nil
		},
	}
}
