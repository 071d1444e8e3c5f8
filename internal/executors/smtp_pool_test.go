package executors

import (
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailforge/internal/models"
)

func TestSMTPPoolAuthPrefersXOAUTH2WhenTokenPresent(t *testing.T) {
	p := newSMTPPool("smtp.example.com", 587, "user@example.com", "pw", "startTLS", "token-abc")
	auth, ok := p.auth().(*xoauth2Auth)
	require.True(t, ok)
	assert.Equal(t, "user@example.com", auth.username)
	assert.Equal(t, "token-abc", auth.token)
}

func TestSMTPPoolAuthFallsBackToPlainAuth(t *testing.T) {
	p := newSMTPPool("smtp.example.com", 587, "user@example.com", "pw", "startTLS", "")
	_, ok := p.auth().(*xoauth2Auth)
	assert.False(t, ok)
	assert.NotNil(t, p.auth())
}

func TestXOAUTH2AuthStart(t *testing.T) {
	a := &xoauth2Auth{username: "u@example.com", token: "tok"}
	mech, resp, err := a.Start(&smtp.ServerInfo{})
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=u@example.com\x01auth=Bearer tok\x01\x01", string(resp))

	next, err := a.Next([]byte("garbage"), true)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, next)

	next, err = a.Next(nil, false)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestDSNMailParams(t *testing.T) {
	assert.Equal(t, "", dsnMailParams(models.DSNParams{}))
	assert.Equal(t, " RET=FULL ENVID=abc123", dsnMailParams(models.DSNParams{RET: "FULL", ENVID: "abc123"}))
}

func TestDSNRcptParams(t *testing.T) {
	assert.Equal(t, "", dsnRcptParams(models.DSNParams{}))
	assert.Equal(t, " NOTIFY=SUCCESS,FAILURE ORCPT=rfc822;a@b.com", dsnRcptParams(models.DSNParams{NOTIFY: "SUCCESS,FAILURE", ORCPT: "rfc822;a@b.com"}))
}
