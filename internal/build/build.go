// Package build turns benchmark requests into loadable addon archives.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/go-units"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/pbo"
	"github.com/BrettMayson/arma-bench/internal/scratch"
	"github.com/BrettMayson/arma-bench/protocol"
)

// ArchiveName is the file name of the built archive inside addons/.
const ArchiveName = "execute.pbo"

const (
	DefaultExecuteTimeout = 30 * time.Second
	DefaultCompareTimeout = 120 * time.Second
)

// Options sets the in-engine watchdog per request kind.
type Options struct {
	ExecuteTimeout time.Duration
	CompareTimeout time.Duration
}

// Package is a built archive on disk. Close removes its directory.
type Package struct {
	ID       string
	Dir      string
	Archive  string
	Kind     protocol.RequestKind
	Watchdog time.Duration

	once     sync.Once
	closeErr error
	remove   func() error
}

// Close removes the package directory. It runs at most once; later calls
// return the first result.
func (p *Package) Close() error {
	p.once.Do(func() {
		if p.remove != nil {
			p.closeErr = p.remove()
		}
	})
	return p.closeErr
}

type Builder struct {
	scratch *scratch.Manager
	opts    Options
	logger  logging.Logger
}

func NewBuilder(sc *scratch.Manager, opts Options, logger logging.Logger) *Builder {
	if opts.ExecuteTimeout <= 0 {
		opts.ExecuteTimeout = DefaultExecuteTimeout
	}
	if opts.CompareTimeout <= 0 {
		opts.CompareTimeout = DefaultCompareTimeout
	}
	return &Builder{scratch: sc, opts: opts, logger: logger}
}

// Build writes <scratch>/<id>/addons/execute.pbo for req. On failure the
// job directory is removed before returning.
func (b *Builder) Build(id string, req protocol.Request) (*Package, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	w := pbo.NewWriter()
	w.SetProperty("prefix", Prefix)
	if err := w.AddFile(configFile, []byte(configCpp)); err != nil {
		return nil, err
	}

	watchdog, err := b.addBootstrap(w, id, req)
	if err != nil {
		return nil, err
	}

	dir, err := b.scratch.Create(id)
	if err != nil {
		return nil, err
	}
	pkg := &Package{
		ID:       id,
		Dir:      dir,
		Archive:  filepath.Join(dir, scratch.AddonsDir, ArchiveName),
		Kind:     req.Kind,
		Watchdog: watchdog,
		remove:   func() error { return b.scratch.Remove(id) },
	}

	size, err := writeArchive(pkg.Archive, w)
	if err != nil {
		pkg.Close()
		return nil, err
	}

	b.logger.Debug("archive built",
		"job_id", id,
		"kind", req.Kind,
		"files", w.Len(),
		"size", units.HumanSize(float64(size)),
	)
	return pkg, nil
}

func (b *Builder) addBootstrap(w *pbo.Writer, id string, req protocol.Request) (time.Duration, error) {
	switch req.Kind {
	case protocol.RequestExecute:
		data := bootstrapData{ID: id, Timeout: int(b.opts.ExecuteTimeout.Seconds())}
		src, err := render(executeBootstrap, data)
		if err != nil {
			return 0, err
		}
		if err := w.AddFile(bootstrapFile, src); err != nil {
			return 0, err
		}
		if err := w.AddFile(benchFile, []byte(req.Script)); err != nil {
			return 0, err
		}
		return b.opts.ExecuteTimeout, nil

	case protocol.RequestCompare:
		data := bootstrapData{ID: id, Timeout: int(b.opts.CompareTimeout.Seconds())}
		for _, it := range req.Items {
			name := itemFile(it.ID, it.SQFC)
			if err := w.AddFile(name, it.Content); err != nil {
				return 0, err
			}
			data.Items = append(data.Items, compareItem{ID: it.ID, File: name})
		}
		src, err := render(compareBootstrap, data)
		if err != nil {
			return 0, err
		}
		if err := w.AddFile(bootstrapFile, src); err != nil {
			return 0, err
		}
		return b.opts.CompareTimeout, nil

	default:
		return 0, fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

func writeArchive(path string, w *pbo.Writer) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating archive: %w", err)
	}
	n, err := w.WriteTo(f)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("writing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing archive: %w", err)
	}
	return n, nil
}
