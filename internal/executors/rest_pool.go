package executors

import (
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

// RESTClient wraps the *http.Client the Gmail reconciler uses, optionally
// routed through a per-account SOCKS5 proxy. The Outlook reconciler builds
// its Graph client without this transport, so Graph traffic does not go
// through the account's proxy.
type RESTClient struct {
	HTTP *http.Client
}

// newRESTClient builds the REST client for account. ProxyID, when set, is
// taken as the SOCKS5 proxy's plain "host:port" dial address, with no proxy
// authentication — accounts that don't route through a proxy leave it empty
// and get the default dialer.
func newRESTClient(account *models.Account) (*RESTClient, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	if account.ProxyID != "" {
		dialer, err := proxy.SOCKS5("tcp", account.ProxyID, nil, proxy.Direct)
		if err != nil {
			return nil, mailerrors.NewConfigError("rest.proxy_dial", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, mailerrors.NewConfigError("rest.proxy_dial", errors.New("proxy dialer does not support DialContext"))
		}
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}

	return &RESTClient{
		HTTP: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
	}, nil
}
