package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/resilience"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout  time.Duration
	User     string
	Password string
	// Retry governs reconnect attempts on transient failures. Zero value
	// uses resilience defaults.
	Retry resilience.RetryConfig
}

// FTPFetcher downloads files over FTP.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("ftp", "retrieve")
	}
	return &FTPFetcher{opts: opts}
}

// parseFTPURL extracts host (with port), path and optional credentials
// from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, user *url.Userinfo, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", nil, eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", nil, eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", nil, eris.New("empty path in ftp url")
	}

	return host, path, u.User, nil
}

// ftpConnReader wraps an FTP response and connection so that closing the reader
// also closes the FTP response and disconnects from the server.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "quit ftp connection")
	}
	return nil
}

// Open connects to the FTP server and retrieves the file. Credentials in
// the URL take precedence over the configured ones. Transient failures are
// retried; a 550 reply is reported as a missing input.
// The caller must close the returned ReadCloser to release the connection.
func (f *FTPFetcher) Open(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	host, path, userinfo, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	user, pass := f.opts.User, f.opts.Password
	if userinfo != nil {
		user = userinfo.Username()
		pass, _ = userinfo.Password()
	}

	rc, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		return f.retrieve(ctx, host, path, user, pass)
	})
	if err != nil {
		var reply *textproto.Error
		if errors.As(err, &reply) && reply.Code == ftp.StatusFileUnavailable {
			return nil, &model.MissingInputError{Source: ftpURL, Err: err}
		}
		return nil, err
	}
	return rc, nil
}

func (f *FTPFetcher) retrieve(ctx context.Context, host, path, user, pass string) (io.ReadCloser, error) {
	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}

	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp retrieve")
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}
