package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// fakeClient counts sessions and returns canned command output.
type fakeClient struct {
	sessions int
	output   string
	execErr  error
	closed   bool
}

func (c *fakeClient) NewSession() (Session, error) {
	c.sessions++
	return &fakeSession{client: c}, nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

type fakeSession struct {
	client *fakeClient
}

func (s *fakeSession) CombinedOutput(string) ([]byte, error) {
	if s.client.execErr != nil {
		return nil, s.client.execErr
	}
	return []byte(s.client.output), nil
}

func (s *fakeSession) Close() error { return nil }

type fakeDialer struct {
	client *fakeClient
	dials  int
	err    error
}

func (d *fakeDialer) dial(string, *ssh.ClientConfig) (Client, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.client, nil
}

func openTestConn(t *testing.T, p *Provider) string {
	t.Helper()
	connID, err := p.Open("host:22", "dev", nil, ssh.InsecureIgnoreHostKey())
	require.NoError(t, err)
	return connID
}

func TestExecOverActiveConnection(t *testing.T) {
	dialer := &fakeDialer{client: &fakeClient{output: "total 4\n"}}
	p := NewProviderWithDialer(dialer.dial)
	connID := openTestConn(t, p)

	result, err := p.Execute(context.Background(), "zync:ssh:exec",
		map[string]interface{}{"command": "ls -l"},
		&types.Context{PanelID: "panel_1", ConnectionID: connID})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "total 4\n", result.Data["output"])
	assert.Equal(t, 1, dialer.client.sessions)
}

// No active connection means no network activity at all.
func TestExecFailsClosedWithoutConnection(t *testing.T) {
	dialer := &fakeDialer{client: &fakeClient{}}
	p := NewProviderWithDialer(dialer.dial)

	result, err := p.Execute(context.Background(), "zync:ssh:exec",
		map[string]interface{}{"command": "rm -rf /"},
		&types.Context{PanelID: "panel_1"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage(), "no active remote connection")
	assert.Equal(t, 0, dialer.dials)
	assert.Equal(t, 0, dialer.client.sessions)
}

func TestExecUnknownConnection(t *testing.T) {
	dialer := &fakeDialer{client: &fakeClient{}}
	p := NewProviderWithDialer(dialer.dial)

	result, err := p.Execute(context.Background(), "zync:ssh:exec",
		map[string]interface{}{"command": "ls"},
		&types.Context{ConnectionID: "conn_gone"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage(), "not open")
}

func TestExecCommandFailure(t *testing.T) {
	dialer := &fakeDialer{client: &fakeClient{execErr: errors.New("exit status 127")}}
	p := NewProviderWithDialer(dialer.dial)
	connID := openTestConn(t, p)

	result, err := p.Execute(context.Background(), "zync:ssh:exec",
		map[string]interface{}{"command": "nope"},
		&types.Context{ConnectionID: connID})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage(), "exit status 127")
}

func TestCloseClearsActive(t *testing.T) {
	dialer := &fakeDialer{client: &fakeClient{}}
	p := NewProviderWithDialer(dialer.dial)
	connID := openTestConn(t, p)
	assert.Equal(t, connID, p.Active())

	require.NoError(t, p.Close(connID))
	assert.Empty(t, p.Active())
	assert.True(t, dialer.client.closed)

	assert.Error(t, p.Close(connID))
}

func TestDialFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	p := NewProviderWithDialer(dialer.dial)

	_, err := p.Open("host:22", "dev", nil, ssh.InsecureIgnoreHostKey())
	assert.Error(t, err)
	assert.Empty(t, p.Active())
}

func TestShutdownClosesEverything(t *testing.T) {
	a := &fakeClient{}
	b := &fakeClient{}
	clients := []*fakeClient{a, b}
	i := 0
	p := NewProviderWithDialer(func(string, *ssh.ClientConfig) (Client, error) {
		c := clients[i]
		i++
		return c, nil
	})

	openTestConn(t, p)
	openTestConn(t, p)

	p.Shutdown()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Empty(t, p.Active())
}
