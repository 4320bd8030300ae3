package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/pretrained"
)

type listEntry struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Cached    bool                  `json:"cached"`
	Size      int64                 `json:"size"`
	Artifacts []pretrained.Artifact `json:"artifacts"`
}

func listCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls", "models"},
		Usage:   "List pretrained variants and their cache state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "cache-dir",
				Usage:       "directory holding downloaded artifacts",
				Sources:     cli.EnvVars(envCacheDir),
				Destination: &cacheDir,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print JSON instead of a table",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			applyVariantConfig(c, cfg)
			resolver, err := newResolver(cacheDir, logger.FromContext(ctx))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: cache dir: %v", err), 1)
			}
			entries, err := listEntries(resolver)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if asJSON {
				return writeListJSON(os.Stdout, entries)
			}
			fmt.Fprintf(os.Stdout, "Cache: %s\n\n", resolver.CacheRoot)
			return writeListTable(os.Stdout, entries)
		},
	}
}

func listEntries(r *pretrained.Resolver) ([]listEntry, error) {
	entries := make([]listEntry, 0, len(pretrained.Variants()))
	for _, v := range pretrained.Variants() {
		arts, err := r.Artifacts(v.Pretrained())
		if err != nil {
			return nil, err
		}
		e := listEntry{ID: v.ID(), Name: v.String(), Cached: true, Artifacts: arts}
		for _, a := range arts {
			e.Size += a.Size
			e.Cached = e.Cached && a.Present
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func writeListJSON(w io.Writer, entries []listEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeListTable(w io.Writer, entries []listEntry) error {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	missing := cell.Foreground(lipgloss.Color("#666680"))

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status, size := "missing", "-"
		if e.Cached {
			status = "cached"
		} else if e.Size > 0 {
			status = "partial"
		}
		if e.Size > 0 {
			size = humanize.Bytes(uint64(e.Size))
		}
		rows = append(rows, []string{e.ID, e.Name, status, size})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Foreground(lipgloss.Color("#666680"))).
		Headers("ID", "NAME", "STATUS", "SIZE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case row >= 0 && row < len(entries) && !entries[row].Cached:
				return missing
			default:
				return cell
			}
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}
