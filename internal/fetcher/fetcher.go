// Package fetcher opens input tables from local files, ftp:// URLs and
// http(s):// URLs, and reads them as CSV or XLSX rows.
package fetcher

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/model"
)

// Fetcher opens an input location for reading.
type Fetcher interface {
	// Open returns the content at location. Callers must close it. A
	// location that does not exist yields a *model.MissingInputError.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Router dispatches a location to the fetcher for its scheme. Locations
// without a scheme are local paths.
type Router struct {
	Local Fetcher
	FTP   Fetcher
	HTTP  Fetcher
}

// New builds a Router from the FTP settings in cfg.
func New(cfg config.FTPConfig) *Router {
	return &Router{
		Local: LocalFetcher{},
		FTP: NewFTPFetcher(FTPOptions{
			Timeout:  time.Duration(cfg.TimeoutSecs) * time.Second,
			User:     cfg.User,
			Password: cfg.Password,
		}),
		HTTP: NewHTTPFetcher(HTTPOptions{}),
	}
}

// Open implements Fetcher.
func (r *Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var f Fetcher
	switch scheme(location) {
	case "ftp":
		f = r.FTP
	case "http", "https":
		f = r.HTTP
	case "":
		f = r.Local
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme in %q", location)
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no fetcher configured for %q", location)
	}
	return f.Open(ctx, location)
}

// LocalFetcher opens files on the local filesystem.
type LocalFetcher struct{}

// Open implements Fetcher.
func (LocalFetcher) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &model.MissingInputError{Source: path, Err: err}
		}
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}

func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil {
		return strings.ToLower(location[:i])
	}
	return strings.ToLower(u.Scheme)
}

// IsXLSX reports whether location names an Excel workbook.
func IsXLSX(location string) bool {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		p = u.Path
	}
	return strings.EqualFold(fileExt(p), ".xlsx")
}

func fileExt(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 || strings.ContainsAny(p[i:], `/\`) {
		return ""
	}
	return p[i:]
}

// ReadRows opens location and returns every row, header included. XLSX
// workbooks are read from their first sheet; everything else is CSV.
func ReadRows(ctx context.Context, f Fetcher, location string) ([][]string, error) {
	rc, err := f.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	if IsXLSX(location) {
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read %s", location)
		}
		return ReadXLSX(data, XLSXOptions{})
	}
	rows, err := ReadCSV(ctx, rc, CSVOptions{LazyQuotes: true})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", location)
	}
	return rows, nil
}
