package sshutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
)

// SFTPFileSystem reads and atomically replaces files over SFTP. The session
// is opened on first use and dropped after any failed operation so the next
// call reconnects.
type SFTPFileSystem struct {
	client *Client
	logger *slog.Logger

	mu         sync.Mutex
	sftpClient *sftp.Client
}

// SFTPOption is a functional option for configuring the SFTPFileSystem.
type SFTPOption func(*SFTPFileSystem)

// WithSFTPLogger sets a custom logger for SFTP operations.
func WithSFTPLogger(logger *slog.Logger) SFTPOption {
	return func(fs *SFTPFileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// NewSFTPFileSystem creates an SFTP file system on top of client.
func NewSFTPFileSystem(client *Client, opts ...SFTPOption) *SFTPFileSystem {
	fs := &SFTPFileSystem{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// session returns the open SFTP session, connecting if needed. Cancelling
// ctx aborts the dial. The caller must hold fs.mu.
func (fs *SFTPFileSystem) session(ctx context.Context) (*sftp.Client, error) {
	if fs.sftpClient != nil {
		return fs.sftpClient, nil
	}
	if fs.client == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, fs.client.config.GetTimeout())
	defer cancel()
	if err := fs.client.Connect(ctx); err != nil {
		return nil, err
	}

	conn, err := fs.client.GetConnection()
	if err != nil {
		return nil, err
	}
	sc, err := sftp.NewClient(conn)
	if err != nil {
		_ = fs.client.Close()
		return nil, fmt.Errorf("creating SFTP client: %w", err)
	}

	fs.sftpClient = sc
	fs.logger.Debug("SFTP session established")
	return sc, nil
}

// reset discards the session and SSH connection after a failure.
// The caller must hold fs.mu.
func (fs *SFTPFileSystem) reset() {
	if fs.sftpClient != nil {
		_ = fs.sftpClient.Close()
		fs.sftpClient = nil
	}
	if fs.client != nil {
		_ = fs.client.Close()
	}
}

// Close closes the SFTP session and the SSH connection.
func (fs *SFTPFileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var err error
	if fs.sftpClient != nil {
		err = fs.sftpClient.Close()
		fs.sftpClient = nil
	}
	if fs.client != nil {
		if cerr := fs.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadFile reads a remote file. A missing file yields an error matching
// fs.ErrNotExist.
func (fs *SFTPFileSystem) ReadFile(ctx context.Context, name string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sc, err := fs.session(ctx)
	if err != nil {
		return nil, err
	}

	f, err := sc.Open(name)
	if err != nil {
		if !os.IsNotExist(err) {
			fs.reset()
		}
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		fs.reset()
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// WriteFileAtomic writes data to a temporary file next to name and renames
// it over name, so readers see either the old or the new content.
func (fs *SFTPFileSystem) WriteFileAtomic(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sc, err := fs.session(ctx)
	if err != nil {
		return err
	}

	if err := fs.writeAtomic(sc, name, data, perm); err != nil {
		fs.reset()
		return err
	}
	return nil
}

func (fs *SFTPFileSystem) writeAtomic(sc *sftp.Client, name string, data []byte, perm os.FileMode) error {
	dir := path.Dir(name)
	if dir != "." && dir != "/" {
		if err := sc.MkdirAll(dir); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	tmp := path.Join(dir, "."+path.Base(name)+".tmp-"+strconv.FormatInt(time.Now().UnixNano(), 36))

	f, err := sc.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = sc.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = sc.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := sc.Chmod(tmp, perm); err != nil {
		fs.logger.Debug("failed to set file permissions",
			slog.String("path", tmp),
			slog.String("error", err.Error()),
		)
	}

	if err := sc.PosixRename(tmp, name); err != nil {
		// Servers without posix-rename refuse to overwrite with a plain
		// rename, so the old file has to go first. Until the rename lands
		// there is no file at name; a reader then sees no stored address
		// and publishes once more.
		fs.logger.Warn("posix rename unsupported, replacing file non-atomically",
			slog.String("path", name),
			slog.String("error", err.Error()),
		)
		if rmErr := sc.Remove(name); rmErr != nil && !os.IsNotExist(rmErr) {
			_ = sc.Remove(tmp)
			return fmt.Errorf("replacing %s: %w", name, err)
		}
		if err := sc.Rename(tmp, name); err != nil {
			_ = sc.Remove(tmp)
			return fmt.Errorf("renaming %s to %s: %w", tmp, name, err)
		}
	}

	fs.logger.Debug("remote file written",
		slog.String("path", name),
		slog.Int("bytes", len(data)),
	)
	return nil
}
