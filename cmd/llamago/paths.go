package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/pretrained"
)

const envCacheDir = "LLAMAGO_CACHE_DIR"

// defaultVariant is used when no variant is named and stdin is not a terminal.
const defaultVariant = pretrained.TinyLlama

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveCacheRoot picks the cache root: flag, then LLAMAGO_CACHE_DIR, then
// the per-user default.
func resolveCacheRoot(flag string) (string, error) {
	if dir := strings.TrimSpace(flag); dir != "" {
		return filepath.Clean(dir), nil
	}
	if dir := strings.TrimSpace(os.Getenv(envCacheDir)); dir != "" {
		return filepath.Clean(dir), nil
	}
	return pretrained.DefaultCacheRoot()
}

func newResolver(flag string, log logger.Logger) (*pretrained.Resolver, error) {
	root, err := resolveCacheRoot(flag)
	if err != nil {
		return nil, err
	}
	return &pretrained.Resolver{CacheRoot: root, Logger: log}, nil
}

func resolveVariant(name string, stdin io.Reader, stderr io.Writer) (pretrained.Variant, error) {
	if name = strings.TrimSpace(name); name != "" {
		return pretrained.ParseVariant(name)
	}
	if !stdinIsTTY() {
		_, _ = fmt.Fprintf(stderr, "run: using variant %s\n", defaultVariant)
		return defaultVariant, nil
	}
	return selectVariantInteractively(pretrained.Variants(), stdin, stderr)
}

func selectVariantInteractively(variants []pretrained.Variant, stdin io.Reader, stderr io.Writer) (pretrained.Variant, error) {
	if len(variants) == 0 {
		return 0, errors.New("no variants available")
	}

	_, _ = fmt.Fprintln(stderr, "run: select a variant")
	for i, v := range variants {
		_, _ = fmt.Fprintf(stderr, "%d. %s (%s)\n", i+1, v, v.ID())
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "run: enter selection [1-%d]: ", len(variants))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return 0, errors.New("no selection provided on stdin; set --variant")
			}
			continue
		}

		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(variants) {
			// Accept a typed name as well as an index.
			if v, perr := pretrained.ParseVariant(line); perr == nil {
				return v, nil
			}
			_, _ = fmt.Fprintf(stderr, "run: invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return 0, errors.New("invalid selection provided on stdin; set --variant")
			}
			continue
		}
		return variants[idx-1], nil
	}
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
