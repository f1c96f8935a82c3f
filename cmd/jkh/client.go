package main

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/jkh/internal/client"
)

var serverURL string

// addURLFlag registers --url on commands that talk to a running server.
func addURLFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "url", "", "server base URL (default http://<host>:<port> from config)")
}

// newClient returns a client for --url, or for the configured host and port.
func newClient(cmd *cobra.Command) (*client.HTTPClient, error) {
	if serverURL != "" {
		return client.NewHTTPClient(serverURL), nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	host := cfg.Host
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "127.0.0.1"
	}
	return client.NewHTTPClient("http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port))), nil
}
