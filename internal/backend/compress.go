package backend

import (
	"fmt"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"binrewrite/internal/diag"
)

// OutputExtension returns the filename suffix for a --format value, per
// spec.md §4.6 step 9: "compute final output filename (appending the
// appropriate extension per format)."
func OutputExtension(format string) string {
	switch format {
	case "patch.gz":
		return ".patch.gz"
	case "patch.bz2":
		return ".patch.bz2"
	case "patch.xz":
		return ".patch.xz"
	case "patch":
		return ".patch"
	case "json":
		return ".json"
	default:
		return ".bin"
	}
}

// gzipLevel maps the 0..9 --compression flag onto the gzip library's own
// level scale.
func gzipLevel(level int) int {
	if level <= 0 {
		return kgzip.NoCompression
	}
	if level >= 9 {
		return kgzip.BestCompression
	}
	return level
}

// NewOutputWriter opens path and wraps it with the compressor named by
// format, when the built-in back-end (no --backend PROG given) finalises
// the output patch itself rather than delegating to a subprocess.
func NewOutputWriter(path, format string, level int) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, diag.New(diag.Config, "backend: create %q: %v", path, err)
	}

	switch format {
	case "patch.gz":
		gz, err := kgzip.NewWriterLevel(f, gzipLevel(level))
		if err != nil {
			f.Close()
			return nil, diag.New(diag.Config, "backend: gzip writer: %v", err)
		}
		return &chainedCloser{w: gz, chain: []io.Closer{gz, f}}, nil

	case "patch.xz":
		cfg := xz.WriterConfig{}
		xw, err := cfg.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, diag.New(diag.Config, "backend: xz writer: %v", err)
		}
		return &chainedCloser{w: xw, chain: []io.Closer{xw, f}}, nil

	case "patch.bz2":
		bw, err := bzip2.NewWriter(f, &bzip2.WriterConfig{Level: bzip2Level(level)})
		if err != nil {
			f.Close()
			return nil, diag.New(diag.Config, "backend: bzip2 writer: %v", err)
		}
		return &chainedCloser{w: bw, chain: []io.Closer{bw, f}}, nil

	case "patch", "binary":
		return f, nil

	default:
		f.Close()
		return nil, diag.New(diag.Config, "backend: %v: %s", fmt.Errorf("unsupported output format"), format)
	}
}

func bzip2Level(level int) int {
	if level <= 0 {
		return 1
	}
	if level >= 9 {
		return 9
	}
	return level
}

// chainedCloser closes an ordered chain of writers (innermost compressor
// first, then the underlying file), the shape every compressed-writer
// stack here needs.
type chainedCloser struct {
	w     io.Writer
	chain []io.Closer
}

func (c *chainedCloser) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *chainedCloser) Close() error {
	var first error
	for _, cl := range c.chain {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
