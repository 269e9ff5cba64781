package remote

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/zyncapp/zync/host/internal/shared/id"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Session runs one remote command.
type Session interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// Client is an established remote connection.
type Client interface {
	NewSession() (Session, error)
	Close() error
}

// DialFunc establishes a remote connection. The default uses ssh.Dial;
// tests substitute a fake.
type DialFunc func(addr string, config *ssh.ClientConfig) (Client, error)

// Connection tracks one open remote connection.
type Connection struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
	User string `json:"user"`

	client Client
}

// Provider serves remote command execution over established SSH
// connections.
//
// Execution is fail closed: a call with no active connection id, or an
// id that no longer names an open connection, is answered with an error
// before any network activity happens. The host opens connections; the
// sandbox surface only names them.
type Provider struct {
	dial DialFunc

	mu     sync.Mutex
	conns  map[string]*Connection
	active string
}

// NewProvider creates a remote exec provider using ssh.Dial.
func NewProvider() *Provider {
	return NewProviderWithDialer(sshDial)
}

// NewProviderWithDialer creates a provider with a custom dialer.
func NewProviderWithDialer(dial DialFunc) *Provider {
	return &Provider{
		dial:  dial,
		conns: make(map[string]*Connection),
	}
}

func sshDial(addr string, config *ssh.ClientConfig) (Client, error) {
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, err
	}
	return &sshClient{client: client}, nil
}

type sshClient struct {
	client *ssh.Client
}

func (c *sshClient) NewSession() (Session, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *sshClient) Close() error {
	return c.client.Close()
}

// Open establishes a connection and makes it the active one.
func (p *Provider) Open(addr, user string, auth []ssh.AuthMethod, hostKey ssh.HostKeyCallback) (string, error) {
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
	}

	client, err := p.dial(addr, config)
	if err != nil {
		return "", fmt.Errorf("remote dial %s: %w", addr, err)
	}

	conn := &Connection{
		ID:     id.NewConnectionID().String(),
		Addr:   addr,
		User:   user,
		client: client,
	}

	p.mu.Lock()
	p.conns[conn.ID] = conn
	p.active = conn.ID
	p.mu.Unlock()
	return conn.ID, nil
}

// Close shuts a connection down. Closing the active connection leaves
// no connection active.
func (p *Provider) Close(connID string) error {
	p.mu.Lock()
	conn, ok := p.conns[connID]
	if ok {
		delete(p.conns, connID)
		if p.active == connID {
			p.active = ""
		}
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown connection: %s", connID)
	}
	return conn.client.Close()
}

// Active returns the active connection id, or "" when none is open.
func (p *Provider) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Shutdown closes every open connection.
func (p *Provider) Shutdown() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Connection)
	p.active = ""
	p.mu.Unlock()

	for _, conn := range conns {
		conn.client.Close()
	}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Family:      "zync:ssh",
		Name:        "Remote Execution",
		Description: "Run commands over the active remote connection",
		Ops: []types.Op{
			{
				ID:          "zync:ssh:exec",
				Name:        "Execute Remote Command",
				Description: "Run a command on the active remote connection",
				Params: []types.Param{
					{Name: "command", Type: "string", Description: "Command line to run", Required: true},
				},
				Returns: "object",
			},
		},
	}
}

// Execute runs a remote operation
func (p *Provider) Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	switch op {
	case "zync:ssh:exec":
		return p.exec(ctx, params, sctx)
	default:
		return failure(fmt.Sprintf("unknown operation: %s", op))
	}
}

func (p *Provider) exec(ctx context.Context, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	if sctx == nil || sctx.ConnectionID == "" {
		return failure("no active remote connection")
	}

	command, _ := params["command"].(string)
	if command == "" {
		return failure("command parameter required")
	}

	p.mu.Lock()
	conn, ok := p.conns[sctx.ConnectionID]
	p.mu.Unlock()
	if !ok {
		return failure(fmt.Sprintf("connection %s is not open", sctx.ConnectionID))
	}

	session, err := conn.client.NewSession()
	if err != nil {
		return failure(fmt.Sprintf("session open failed: %v", err))
	}
	defer session.Close()

	type execResult struct {
		output []byte
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		done <- execResult{output, err}
	}()

	select {
	case <-ctx.Done():
		return failure(fmt.Sprintf("remote exec canceled: %v", ctx.Err()))
	case res := <-done:
		if res.err != nil {
			return failure(fmt.Sprintf("remote exec failed: %v", res.err))
		}
		return success(map[string]interface{}{
			"output":     string(res.output),
			"connection": conn.ID,
		})
	}
}

// Helper functions
func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
