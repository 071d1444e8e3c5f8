package executors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailforge/internal/models"
)

func TestNewRESTClientWithoutProxyUsesDirectDialer(t *testing.T) {
	c, err := newRESTClient(&models.Account{ID: "acct_1"})
	require.NoError(t, err)
	require.NotNil(t, c.HTTP)
	assert.Equal(t, 60e9, float64(c.HTTP.Timeout))
}

func TestNewRESTClientAcceptsUnparseableProxyUntilDial(t *testing.T) {
	_, err := newRESTClient(&models.Account{ID: "acct_1", ProxyID: "not a valid address::"})
	assert.NoError(t, err) // proxy.SOCKS5 only validates the dial target lazily, at Dial time
}
