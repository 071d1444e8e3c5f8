package mailerrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	err := NewTransientError("imap.fetch", fmt.Errorf("i/o timeout"))
	assert.True(t, IsTransient(err))
	assert.False(t, IsAuth(err))
	assert.Contains(t, err.Error(), "imap.fetch")
}

func TestIsAuth(t *testing.T) {
	err := NewAuthError("smtp.login", fmt.Errorf("invalid credentials"))
	assert.True(t, IsAuth(err))
	assert.False(t, IsTransient(err))
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewStorageError("envelope_store.save", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorage(err))
}

func TestConfigAndQuotaErrors(t *testing.T) {
	cfgErr := NewConfigError("outgoing_task.validate", fmt.Errorf("unparseable address"))
	assert.True(t, IsConfig(cfgErr))

	quotaErr := NewQuotaError("account.create", fmt.Errorf("plan limit reached"))
	assert.True(t, IsQuota(quotaErr))
}

func TestProtocolError(t *testing.T) {
	err := NewProtocolError("imap.select", nil)
	assert.Equal(t, "protocol error: imap.select", err.Error())
	assert.True(t, IsProtocol(err))
}
