package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnProxySendBeforeInstallReturnsError(t *testing.T) {
	p := &connProxy{}
	err := p.Send([]byte("hello"))
	assert.Error(t, err)
}

func TestConnProxyCloseBeforeInstallIsNoop(t *testing.T) {
	p := &connProxy{}
	assert.NoError(t, p.Close(1000))
}
