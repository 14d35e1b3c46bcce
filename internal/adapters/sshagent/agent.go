// Package sshagent makes the deployment key available through an ssh-agent
// before any networked step runs.
package sshagent

import (
	"context"
	"net"
	"os"
	"regexp"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

const (
	envAuthSock = "SSH_AUTH_SOCK"
	envAgentPID = "SSH_AGENT_PID"
)

var agentVarRe = regexp.MustCompile(`(SSH_AUTH_SOCK|SSH_AGENT_PID)=([^;\s]+)`)

// Bootstrapper implements ports.KeyAgent.
type Bootstrapper struct {
	runner     ports.CommandRunner
	agentBin   string
	passphrase []byte
	logger     log.Logger

	// overridable in tests
	getenv func(string) string
	setenv func(string, string) error
}

// New returns a Bootstrapper that starts agentBin (ssh-agent by default)
// through runner when no agent is reachable.
func New(runner ports.CommandRunner, agentBin, passphrase string, logger log.Logger) *Bootstrapper {
	if agentBin == "" {
		agentBin = "ssh-agent"
	}
	var pass []byte
	if passphrase != "" {
		pass = []byte(passphrase)
	}
	return &Bootstrapper{
		runner:     runner,
		agentBin:   agentBin,
		passphrase: pass,
		logger:     logger,
		getenv:     os.Getenv,
		setenv:     os.Setenv,
	}
}

// EnsureAgentRunning is a no-op when the agent named by SSH_AUTH_SOCK
// answers; otherwise it starts one and exports its environment.
func (b *Bootstrapper) EnsureAgentRunning(ctx context.Context) (bool, error) {
	if sock := b.getenv(envAuthSock); sock != "" {
		if err := ping(sock); err == nil {
			level.Debug(b.logger).Log("msg", "ssh agent reachable", "sock", sock)
			return false, nil
		}
		level.Info(b.logger).Log("msg", "ssh agent not reachable, starting a new one", "sock", sock)
	}

	res, err := b.runner.Run(ctx, ports.Command{Name: b.agentBin, Args: []string{"-s"}})
	if err != nil {
		return false, errors.Wrap(err, "starting ssh agent")
	}
	if err := res.Err(); err != nil {
		return false, errors.Wrap(err, "starting ssh agent")
	}

	vars := parseAgentOutput(res.Output)
	sock, ok := vars[envAuthSock]
	if !ok {
		return false, errors.New("ssh agent output did not contain " + envAuthSock)
	}
	for k, v := range vars {
		if err := b.setenv(k, v); err != nil {
			return false, errors.Wrapf(err, "exporting %s", k)
		}
	}
	level.Info(b.logger).Log("msg", "started ssh agent", "sock", sock, "pid", vars[envAgentPID])
	return true, nil
}

// LoadKey parses the private key at path and adds it to the running agent.
// Every failure is final: a rejected key does not become valid on retry.
func (b *Bootstrapper) LoadKey(ctx context.Context, path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading deployment key")
	}
	key, err := b.parseKey(pem)
	if err != nil {
		return errors.Wrapf(err, "parsing deployment key %s", path)
	}

	conn, err := dial(b.getenv(envAuthSock))
	if err != nil {
		return errors.Wrap(err, "connecting to ssh agent")
	}
	defer conn.Close()

	if err := agent.NewClient(conn).Add(agent.AddedKey{PrivateKey: key, Comment: path}); err != nil {
		return errors.Wrapf(err, "agent rejected deployment key %s", path)
	}
	level.Info(b.logger).Log("msg", "loaded deployment key", "path", path)
	return nil
}

func (b *Bootstrapper) parseKey(pem []byte) (interface{}, error) {
	key, err := ssh.ParseRawPrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		if b.passphrase == nil {
			return nil, errors.New("key is passphrase protected and no passphrase is configured")
		}
		return ssh.ParseRawPrivateKeyWithPassphrase(pem, b.passphrase)
	}
	return key, err
}

func parseAgentOutput(out string) map[string]string {
	vars := map[string]string{}
	for _, m := range agentVarRe.FindAllStringSubmatch(out, -1) {
		vars[m[1]] = m[2]
	}
	return vars
}

func dial(sock string) (net.Conn, error) {
	if sock == "" {
		return nil, errors.New(envAuthSock + " is not set")
	}
	return net.DialTimeout("unix", sock, 2*time.Second)
}

func ping(sock string) error {
	conn, err := dial(sock)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = agent.NewClient(conn).List()
	return err
}
