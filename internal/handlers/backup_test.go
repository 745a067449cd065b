package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftpanel/backend/internal/models"
)

func TestServerNodeAPIWithoutNode(t *testing.T) {
	server := &models.Server{UUID: "orphan", NodeID: 7}

	api, err := serverNodeAPI(server)
	require.Error(t, err)
	assert.Nil(t, api)
}

func TestServerNodeAPIWithNode(t *testing.T) {
	server := &models.Server{
		UUID: "s1",
		Node: &models.Node{FQDN: "node1.example.com", Port: 8443, UseSSL: true, Token: "secret"},
	}

	api, err := serverNodeAPI(server)
	require.NoError(t, err)
	assert.NotNil(t, api)
}
