package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWSURL(t *testing.T) {
	plain := NewClient("http://node1.example.com:8443", "tok").Server("srv-1")
	assert.Equal(t, "ws://node1.example.com:8443/api/servers/srv-1/events", plain.wsURL())

	secure := NewClient("https://node1.example.com:8443", "tok").Server("srv-1")
	assert.Equal(t, "wss://node1.example.com:8443/api/servers/srv-1/events", secure.wsURL())
}
