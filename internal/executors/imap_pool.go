package executors

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

// IMAPPool wraps a single authenticated IMAP connection for an account,
// kept behind a mutex with a Noop-based liveness check before reuse.
type IMAPPool struct {
	accountID    string
	mu           sync.Mutex
	conn         *client.Client
	dialFn       func() (*client.Client, error)
	capabilities []string
}

func dialIMAP(ctx context.Context, account *models.Account) (*IMAPPool, error) {
	dial := func() (*client.Client, error) {
		return connectIMAP(ctx, account)
	}

	c, err := dial()
	if err != nil {
		return nil, err
	}

	caps, err := c.Capability()
	if err != nil {
		c.Logout()
		return nil, mailerrors.NewProtocolError("imap.capability", err)
	}

	capStrings := make([]string, 0, len(caps))
	for cap := range caps {
		capStrings = append(capStrings, cap)
	}

	return &IMAPPool{
		accountID:    account.ID,
		conn:         c,
		dialFn:       dial,
		capabilities: capStrings,
	}, nil
}

// connectIMAP runs the standard connect sequence: TCP → TLS/STARTTLS per
// account config → AUTH (password or XOAUTH2). CAPABILITY is issued
// separately by dialIMAP on the first connect.
func connectIMAP(ctx context.Context, account *models.Account) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.ImapServer, account.ImapPort)
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}

	var c *client.Client
	var err error

	switch account.ImapSecurity {
	case enum.EmailSecuritySSL, enum.EmailSecurityTLS:
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: account.ImapServer})
	default:
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, mailerrors.NewTransientError("imap.dial", err)
	}

	if account.ImapSecurity == enum.EmailSecurityStartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: account.ImapServer}); err != nil {
			c.Logout()
			return nil, mailerrors.NewTransientError("imap.starttls", err)
		}
	}

	c.Timeout = 30 * time.Second
	if account.OAuthAccessToken != "" {
		authClient := sasl.NewXoauth2Client(account.ImapUsername, account.OAuthAccessToken)
		if err := c.Authenticate(authClient); err != nil {
			c.Logout()
			return nil, mailerrors.NewAuthError("imap.xoauth2", err)
		}
	} else {
		if err := c.Login(account.ImapUsername, account.ImapPassword); err != nil {
			c.Logout()
			return nil, mailerrors.NewAuthError("imap.login", err)
		}
	}
	c.Timeout = 0

	return c, nil
}

// Client returns the live *client.Client, reconnecting first if the current
// connection fails a NOOP liveness check.
func (p *IMAPPool) Client() (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		if err := p.conn.Noop(); err == nil {
			return p.conn, nil
		}
		p.conn.Logout()
		p.conn = nil
	}

	c, err := p.dialFn()
	if err != nil {
		return nil, mailerrors.NewTransientError("imap.reconnect", err)
	}
	p.conn = c
	return c, nil
}

// Capabilities returns the capability strings cached at connect time.
func (p *IMAPPool) Capabilities() []string {
	return p.capabilities
}

// Close logs out and drops the underlying connection.
func (p *IMAPPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Logout()
		p.conn = nil
	}
}
