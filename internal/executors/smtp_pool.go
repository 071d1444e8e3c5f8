package executors

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

// SMTPPool holds the connect parameters for an account's (or MTA's) SMTP
// relay. Unlike the IMAP pool there is no long-lived session to keep alive:
// it dials fresh per send via net/smtp, and its "connection pool" role is
// satisfied by caching those parameters and the auth strategy once per
// account rather than re-deriving them on every outgoing task.
type SMTPPool struct {
	server   string
	port     int
	username string
	password string
	security enum.EmailSecurity
	oauth    string
}

func newSMTPPool(server string, port int, username, password string, security enum.EmailSecurity, oauthToken string) *SMTPPool {
	return &SMTPPool{server: server, port: port, username: username, password: password, security: security, oauth: oauthToken}
}

// Send delivers the prepared message via net/smtp, split by security mode
// the same way a sendToServer / sendWithSTARTTLS pair would be.
func (p *SMTPPool) Send(from string, recipients []string, body []byte) error {
	return p.SendWithDSN(from, recipients, body, models.DSNParams{})
}

// SendWithDSN delivers the prepared message with RFC 3461 delivery-status
// parameters attached to the MAIL/RCPT commands. net/smtp.Client exposes no
// parameterized Mail/Rcpt call, so a non-empty dsn is applied by issuing the
// extended commands directly over the client's embedded textproto.Conn
// rather than going through smtp.Client.Mail/Rcpt.
func (p *SMTPPool) SendWithDSN(from string, recipients []string, body []byte, dsn models.DSNParams) error {
	addr := fmt.Sprintf("%s:%d", p.server, p.port)
	auth := p.auth()
	mailParams, rcptParams := dsnMailParams(dsn), dsnRcptParams(dsn)

	switch p.security {
	case enum.EmailSecurityStartTLS:
		return p.sendWithSTARTTLS(addr, auth, from, recipients, body, mailParams, rcptParams)
	case enum.EmailSecuritySSL, enum.EmailSecurityTLS:
		return p.sendWithImplicitTLS(addr, auth, from, recipients, body, mailParams, rcptParams)
	default:
		if mailParams == "" && rcptParams == "" {
			if err := smtp.SendMail(addr, auth, from, recipients, body); err != nil {
				return mailerrors.NewTransientError("smtp.send", err)
			}
			return nil
		}
		c, err := smtp.Dial(addr)
		if err != nil {
			return mailerrors.NewTransientError("smtp.dial", err)
		}
		defer c.Close()
		return p.deliver(c, auth, from, recipients, body, mailParams, rcptParams)
	}
}

// dsnMailParams renders the RET/ENVID parameters RFC 3461 attaches to the
// MAIL FROM command.
func dsnMailParams(dsn models.DSNParams) string {
	var b strings.Builder
	if dsn.RET != "" {
		b.WriteString(" RET=")
		b.WriteString(dsn.RET)
	}
	if dsn.ENVID != "" {
		b.WriteString(" ENVID=")
		b.WriteString(dsn.ENVID)
	}
	return b.String()
}

// dsnRcptParams renders the NOTIFY/ORCPT parameters RFC 3461 attaches to
// every RCPT TO command.
func dsnRcptParams(dsn models.DSNParams) string {
	var b strings.Builder
	if dsn.NOTIFY != "" {
		b.WriteString(" NOTIFY=")
		b.WriteString(dsn.NOTIFY)
	}
	if dsn.ORCPT != "" {
		b.WriteString(" ORCPT=")
		b.WriteString(dsn.ORCPT)
	}
	return b.String()
}

func (p *SMTPPool) auth() smtp.Auth {
	if p.oauth != "" {
		return &xoauth2Auth{username: p.username, token: p.oauth}
	}
	return smtp.PlainAuth("", p.username, p.password, p.server)
}

func (p *SMTPPool) sendWithSTARTTLS(addr string, auth smtp.Auth, from string, recipients []string, body []byte, mailParams, rcptParams string) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return mailerrors.NewTransientError("smtp.dial", err)
	}
	defer c.Close()

	if err := c.StartTLS(&tls.Config{ServerName: p.server}); err != nil {
		return mailerrors.NewTransientError("smtp.starttls", err)
	}
	return p.deliver(c, auth, from, recipients, body, mailParams, rcptParams)
}

func (p *SMTPPool) sendWithImplicitTLS(addr string, auth smtp.Auth, from string, recipients []string, body []byte, mailParams, rcptParams string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: p.server})
	if err != nil {
		return mailerrors.NewTransientError("smtp.tls_dial", err)
	}
	c, err := smtp.NewClient(conn, p.server)
	if err != nil {
		conn.Close()
		return mailerrors.NewTransientError("smtp.client", err)
	}
	defer c.Close()
	return p.deliver(c, auth, from, recipients, body, mailParams, rcptParams)
}

func (p *SMTPPool) deliver(c *smtp.Client, auth smtp.Auth, from string, recipients []string, body []byte, mailParams, rcptParams string) error {
	if auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(auth); err != nil {
				return mailerrors.NewAuthError("smtp.auth", err)
			}
		}
	}
	if mailParams == "" {
		if err := c.Mail(from); err != nil {
			return mailerrors.NewTransientError("smtp.mail", err)
		}
	} else {
		if err := p.rawCmd(c, 250, "MAIL FROM:<%s>%s", from, mailParams); err != nil {
			return mailerrors.NewTransientError("smtp.mail", err)
		}
	}
	for _, rcpt := range recipients {
		if rcptParams == "" {
			if err := c.Rcpt(rcpt); err != nil {
				return mailerrors.NewTransientError("smtp.rcpt", err)
			}
			continue
		}
		if err := p.rawCmd(c, 25, "RCPT TO:<%s>%s", rcpt, rcptParams); err != nil {
			return mailerrors.NewTransientError("smtp.rcpt", err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return mailerrors.NewTransientError("smtp.data", err)
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return mailerrors.NewTransientError("smtp.write", err)
	}
	if err := w.Close(); err != nil {
		return mailerrors.NewTransientError("smtp.close", err)
	}
	return c.Quit()
}

// rawCmd issues an extended MAIL/RCPT command over the client's exported
// textproto connection and checks the reply code against expectCode the way
// textproto.Conn.ReadResponse does: expectCode's digits must match the
// reply code's leading digits (250 requires exactly 250, 25 accepts any 25x).
// net/smtp.Client.Mail/Rcpt have no parameter-injection point, so DSN
// parameters require going around them at this one layer.
func (p *SMTPPool) rawCmd(c *smtp.Client, expectCode int, format string, args ...interface{}) error {
	id, err := c.Text.Cmd(format, args...)
	if err != nil {
		return err
	}
	c.Text.StartResponse(id)
	defer c.Text.EndResponse(id)
	_, _, err = c.Text.ReadResponse(expectCode)
	return err
}

// xoauth2Auth implements smtp.Auth for the XOAUTH2 mechanism used by
// Gmail/Graph-backed SMTP relays, mirroring the same token format
// go-sasl's NewXoauth2Client produces for the IMAP side.
type xoauth2Auth struct {
	username string
	token    string
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, a.token)
	return "XOAUTH2", []byte(resp), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return []byte{}, nil
	}
	return nil, nil
}
