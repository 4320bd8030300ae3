package pretrained

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio"

	"github.com/samcharles93/llamago/internal/logger"
)

var (
	// ErrIO reports a local filesystem failure in the cache.
	ErrIO = errors.New("pretrained cache i/o")
	// ErrNetwork reports a failed or unsuccessful fetch.
	ErrNetwork = errors.New("pretrained download")
)

// downloadMarker is the query suffix Hugging Face links carry to force a
// download response; it is not part of the file name.
const downloadMarker = "?download=true"

// DefaultCacheRoot returns <home>/.cache/llamago.
func DefaultCacheRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: home dir: %w", ErrIO, err)
	}
	return filepath.Join(home, ".cache", "llamago"), nil
}

// FileName derives the cached file name from an artifact URL: the final
// path segment with the download marker removed.
func FileName(url string) string {
	name := url[strings.LastIndex(url, "/")+1:]
	return strings.ReplaceAll(name, downloadMarker, "")
}

// Paths are the local files backing one variant.
type Paths struct {
	Weights   string
	Tokenizer string
}

// Resolver maps variants to files under CacheRoot, fetching what is missing.
//
// A file that exists under its expected name is trusted as-is; there is no
// size or checksum validation. Downloads land in a temporary file that is
// renamed into place, so an interrupted fetch never leaves a file that
// would later be mistaken for a cache hit.
type Resolver struct {
	// CacheRoot holds one directory per variant. Empty means DefaultCacheRoot.
	CacheRoot string
	Fetcher   Fetcher
	Logger    logger.Logger
}

func (r *Resolver) root() (string, error) {
	if r.CacheRoot != "" {
		return r.CacheRoot, nil
	}
	return DefaultCacheRoot()
}

func (r *Resolver) log() logger.Logger {
	if r.Logger == nil {
		return logger.Discard()
	}
	return r.Logger
}

func (r *Resolver) fetcher() Fetcher {
	if r.Fetcher == nil {
		return DefaultFetcher
	}
	return r.Fetcher
}

// Dir is the cache directory for p.
func (r *Resolver) Dir(p Pretrained) (string, error) {
	root, err := r.root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, p.Name), nil
}

// Download returns the local path of url for variant p, fetching it if it
// is not cached yet.
func (r *Resolver) Download(ctx context.Context, p Pretrained, url string) (string, error) {
	dir, err := r.Dir(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrIO, dir, err)
	}

	name := FileName(url)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: no file name in %q", ErrIO, url)
	}
	path := filepath.Join(dir, name)
	log := r.log().With("variant", p.Name, "file", name)

	switch _, err := os.Stat(path); {
	case err == nil:
		log.Debug("cache hit", "path", path)
		downloadsTotal.WithLabelValues("hit").Inc()
		return path, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	log.Info("downloading", "url", url)
	n, err := r.fetchTo(ctx, url, dir, path)
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	downloadsTotal.WithLabelValues("fetched").Inc()
	downloadBytes.Add(float64(n))
	log.Info("downloaded", "size", humanize.Bytes(uint64(n)), "path", path)
	return path, nil
}

func (r *Resolver) fetchTo(ctx context.Context, url, dir, path string) (int64, error) {
	body, err := r.fetcher().Fetch(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrNetwork, url, err)
	}
	defer body.Close()

	t, err := renameio.TempFile(dir, path)
	if err != nil {
		return 0, fmt.Errorf("%w: temp file in %s: %w", ErrIO, dir, err)
	}
	defer t.Cleanup()

	src := &readTracker{r: body}
	n, err := io.Copy(t, src)
	if err != nil {
		if src.err != nil {
			return n, fmt.Errorf("%w: read %s: %w", ErrNetwork, url, src.err)
		}
		return n, fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("%w: commit %s: %w", ErrIO, path, err)
	}
	return n, nil
}

// readTracker remembers the first read error so copy failures can be
// attributed to the network or the disk.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// Weights returns the local model weights for p.
func (r *Resolver) Weights(ctx context.Context, p Pretrained) (string, error) {
	return r.Download(ctx, p, p.ModelURL)
}

// Tokenizer returns the local tokenizer file for p.
func (r *Resolver) Tokenizer(ctx context.Context, p Pretrained) (string, error) {
	return r.Download(ctx, p, p.TokenizerURL)
}

// Resolve makes both artifacts of v available locally.
func (r *Resolver) Resolve(ctx context.Context, v Variant) (Paths, error) {
	p := v.Pretrained()
	weights, err := r.Weights(ctx, p)
	if err != nil {
		return Paths{}, err
	}
	tok, err := r.Tokenizer(ctx, p)
	if err != nil {
		return Paths{}, err
	}
	return Paths{Weights: weights, Tokenizer: tok}, nil
}

// Artifact is the cache state of one file of a variant.
type Artifact struct {
	Role    string `json:"role"`
	URL     string `json:"url"`
	Path    string `json:"path"`
	Present bool   `json:"present"`
	Size    int64  `json:"size"`
}

// Artifacts reports the cache state of p's files without touching the network.
func (r *Resolver) Artifacts(p Pretrained) ([]Artifact, error) {
	dir, err := r.Dir(p)
	if err != nil {
		return nil, err
	}
	out := []Artifact{
		{Role: "weights", URL: p.ModelURL},
		{Role: "tokenizer", URL: p.TokenizerURL},
	}
	for i := range out {
		out[i].Path = filepath.Join(dir, FileName(out[i].URL))
		st, err := os.Stat(out[i].Path)
		switch {
		case err == nil:
			out[i].Present = true
			out[i].Size = st.Size()
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, out[i].Path, err)
		}
	}
	return out, nil
}

// Cached reports whether every artifact of p is present.
func (r *Resolver) Cached(p Pretrained) (bool, error) {
	arts, err := r.Artifacts(p)
	if err != nil {
		return false, err
	}
	for _, a := range arts {
		if !a.Present {
			return false, nil
		}
	}
	return true, nil
}
