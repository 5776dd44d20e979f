package common

import (
	"strings"
	"testing"
)

// TestConfigDefaults verifies unset socket knobs fall back to the defaults
func TestConfigDefaults(t *testing.T) {
	cfg := &ConnectionConfig{Host: "db", Port: 5432, User: "u"}

	if cfg.ReadBufferSize() != DefaultReadBufferSize {
		t.Errorf("Expected default read buffer %d, got %d", DefaultReadBufferSize, cfg.ReadBufferSize())
	}
	if cfg.WriteChunkSize() != DefaultWriteChunkSize {
		t.Errorf("Expected default write chunk %d, got %d", DefaultWriteChunkSize, cfg.WriteChunkSize())
	}

	cfg.Socket = SocketConfig{ReadBufferSize: 512, WriteChunkSize: 8192}
	if cfg.ReadBufferSize() != 512 || cfg.WriteChunkSize() != 8192 {
		t.Error("Configured socket sizes not honored")
	}
}

// TestConfigEndpoint verifies host:port formatting
func TestConfigEndpoint(t *testing.T) {
	cfg := &ConnectionConfig{Host: "db.internal", Port: 6432}
	if cfg.Endpoint() != "db.internal:6432" {
		t.Errorf("Unexpected endpoint %q", cfg.Endpoint())
	}
}

// TestConfigStringRedactsPassword verifies the pretty printer never leaks
// credentials
func TestConfigStringRedactsPassword(t *testing.T) {
	cfg := &ConnectionConfig{
		Host: "db", Port: 5432, User: "alice", Database: "app",
		Password: "super-secret",
	}

	s := cfg.String()
	if strings.Contains(s, "super-secret") {
		t.Error("Password leaked into the config string")
	}
	if !strings.Contains(s, "alice") || !strings.Contains(s, "db:5432") {
		t.Errorf("Expected user and endpoint in the config string:\n%s", s)
	}
}
