// Package security holds the TLS settings used when dialing the broker.
package security

import "fmt"

// ClientMTLSConfig provides a client certificate to the broker.
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// ClientTLSConfig holds TLS configuration for wss:// and tls:// broker URLs.
// The system CA bundle is always trusted; CAFiles are additional trusted CAs.
type ClientTLSConfig struct {
	Enabled            bool     `json:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"`
	ServerName         string   `json:"server_name,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty"`          // "1.2" or "1.3"

	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}

// Validate checks the settings without touching the filesystem.
func (c ClientTLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("unsupported TLS min_version %q", c.MinVersion)
	}
	if c.MTLS.Enabled && (c.MTLS.CertFile == "" || c.MTLS.KeyFile == "") {
		return fmt.Errorf("mtls needs both cert_file and key_file")
	}
	return nil
}
