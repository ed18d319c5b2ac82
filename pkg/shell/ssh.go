package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/starsdaisuki/stargate/pkg/util"
)

// SSHConfig describes how to reach a rooted device over SSH.
type SSHConfig struct {
	Host           string
	Port           int // default 22
	User           string
	Password       string
	KeyFile        string // private key path; used when set
	KnownHostsFile string // host key verification; disabled when empty
	Timeout        time.Duration
}

// SSHTransport runs processes on a remote device. Each Exec opens a fresh
// session on the shared client connection.
type SSHTransport struct {
	addr   string
	client *ssh.Client
}

// DialSSH connects to the device and returns a transport bound to it.
func DialSSH(cfg SSHConfig) (*SSHTransport, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading SSH key %s: %w", cfg.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing SSH key %s: %w", cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("SSH to %s: no password or key configured: %w", cfg.Host, util.ErrInvalidConfig)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts %s: %w", cfg.KnownHostsFile, err)
		}
		hostKeyCallback = cb
	} else {
		util.Logger.Warnf("SSH to %s: host key verification disabled (no known_hosts file configured)", addr)
	}

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s@%s: %w", cfg.User, addr, err)
	}
	return &SSHTransport{addr: addr, client: client}, nil
}

// Addr returns the host:port the transport is connected to.
func (t *SSHTransport) Addr() string {
	return t.addr
}

// Close closes the SSH connection.
func (t *SSHTransport) Close() error {
	return t.client.Close()
}

// Exec implements Transport. The argv is quoted into a single remote command
// line. A cancelled ctx kills the remote session.
func (t *SSHTransport) Exec(ctx context.Context, argv []string, stdin string) (string, string, int, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	cmd := QuoteArgv(argv)
	if err := session.Start(cmd); err != nil {
		return "", "", -1, fmt.Errorf("SSH start '%s': %w", cmd, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		<-done
		return stdout.String(), stderr.String(), -1, fmt.Errorf("SSH exec '%s': %w", cmd, ctx.Err())
	case err := <-done:
		if err == nil {
			return stdout.String(), stderr.String(), 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		return stdout.String(), stderr.String(), -1, fmt.Errorf("SSH exec '%s': %w", cmd, err)
	}
}

// QuoteArgv joins argv into a POSIX shell command line, single-quoting any
// argument that contains characters outside a conservative safe set.
func QuoteArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quoteArg(a)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@,+", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
