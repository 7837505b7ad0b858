package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/slok/stepbridge/internal/log"
)

const (
	// DefaultConnectTimeout is the default SSH connection timeout.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultSSHPort is the default SSH port.
	DefaultSSHPort = 22
)

// ErrExitMissing is returned when the remote command ended without reporting an exit status,
// normally because the connection was lost.
var ErrExitMissing = errors.New("remote command ended without exit status")

// ClientConfig holds the configuration for creating an SSH connection.
type ClientConfig struct {
	// Host is the IP address or hostname of the target.
	Host string
	// Port is the SSH port (default: 22).
	Port int
	// User is the SSH user (e.g., "root").
	User string
	// PrivateKey is the PEM-encoded private key bytes.
	PrivateKey []byte
	// KnownHostsFile verifies the server host key (optional, any key is accepted if missing).
	KnownHostsFile string
	// ConnectTimeout is the SSH connection timeout (default: 10s).
	ConnectTimeout time.Duration
	// Logger for logging (optional).
	Logger log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if len(c.PrivateKey) == 0 {
		return fmt.Errorf("private key is required")
	}
	if c.Port == 0 {
		c.Port = DefaultSSHPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "ssh.Client", "host": c.Host})
	return nil
}

// Client wraps an SSH connection with high-level operations.
type Client struct {
	conn   *ssh.Client
	logger log.Logger
}

// NewClient dials the SSH server and returns a connected client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid ssh client config: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("could not parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("could not load known hosts: %w", err)
		}
	} else {
		cfg.Logger.Warningf("No known hosts file configured, SSH host key will not be verified")
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	// Use a dialer with context for cancellation support.
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}

	// Perform SSH handshake over the raw connection.
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake failed with %s: %w", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	return &Client{
		conn:   client,
		logger: cfg.Logger,
	}, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ExecOpts are options for command execution (non-TTY only).
type ExecOpts struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Exec runs a command on the remote host and returns the exit code.
// On context cancellation the remote process is killed and the session closed.
func (c *Client) Exec(ctx context.Context, command string, opts ExecOpts) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return -1, fmt.Errorf("could not create ssh session: %w", err)
	}
	defer session.Close()

	session.Stdin = opts.Stdin
	session.Stdout = opts.Stdout
	session.Stderr = opts.Stderr

	// Run with context cancellation support.
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// Send signal to remote process and close session.
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return -1, ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case err == nil:
			return 0, nil
		case errors.As(err, &exitErr):
			return exitErr.ExitStatus(), nil
		case errors.As(err, &missingErr):
			return -1, fmt.Errorf("%w: %w", ErrExitMissing, err)
		default:
			return -1, fmt.Errorf("command execution failed: %w", err)
		}
	}
}

// MkdirAll creates a remote directory and its parents via SFTP.
func (c *Client) MkdirAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(c.conn)
	if err != nil {
		return fmt.Errorf("could not create sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path); err != nil {
		return fmt.Errorf("could not create remote directory %s: %w", path, err)
	}

	return nil
}

// Dial opens a connection to an address from the remote host, through the SSH tunnel.
func (c *Client) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := c.conn.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s through ssh: %w", addr, err)
	}
	c.logger.Debugf("Tunneled connection to %s", addr)
	return conn, nil
}
