package sshutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	// ErrNotConnected is returned when an operation is attempted on a disconnected client.
	ErrNotConnected = errors.New("ssh client is not connected")

	// ErrAuthenticationFailed is returned when SSH authentication fails.
	ErrAuthenticationFailed = errors.New("ssh authentication failed")

	// ErrConnectionTimeout is returned when the connection times out.
	ErrConnectionTimeout = errors.New("ssh connection timed out")
)

// Client owns one SSH connection.
type Client struct {
	config *Config
	logger *slog.Logger

	mu   sync.RWMutex
	conn *ssh.Client
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the SSH client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates an SSH client. It does not connect.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect dials and authenticates. Connecting an already connected client
// is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	sshConfig, err := c.buildSSHConfig()
	if err != nil {
		return fmt.Errorf("building SSH config: %w", err)
	}

	timeout := c.config.GetTimeout()
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := c.config.Address()
	c.logger.Debug("connecting to SSH server",
		slog.String("address", addr),
		slog.String("user", c.config.User),
	)

	netConn, err := (&net.Dialer{Timeout: timeout}).DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrConnectionTimeout
		}
		return fmt.Errorf("dialing %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshConfig)
	if err != nil {
		_ = netConn.Close()
		if isAuthError(err) {
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}

	c.conn = ssh.NewClient(sshConn, chans, reqs)
	c.logger.Debug("SSH connection established", slog.String("address", addr))
	return nil
}

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// GetConnection returns the underlying connection or ErrNotConnected.
func (c *Client) GetConnection() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) buildSSHConfig() (*ssh.ClientConfig, error) {
	auth, err := c.buildAuthMethods()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := c.buildHostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.GetTimeout(),
	}, nil
}

// buildAuthMethods offers the key first, then the password.
func (c *Client) buildAuthMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.config.KeyFile != "" {
		keyData, err := os.ReadFile(c.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", c.config.KeyFile, err)
		}

		var signer ssh.Signer
		if c.config.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(c.config.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing key file %s: %w", c.config.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.config.Password != "" {
		methods = append(methods, ssh.Password(c.config.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication methods configured")
	}
	return methods, nil
}

func (c *Client) buildHostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.config.InsecureIgnoreHostKey {
		c.logger.Warn("host key verification disabled",
			slog.String("host", c.config.Host),
		)
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicitly configured
	}

	callback, err := knownhosts.New(c.config.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts %s: %w", c.config.KnownHostsFile, err)
	}
	return callback, nil
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods") ||
		strings.Contains(msg, "permission denied")
}
