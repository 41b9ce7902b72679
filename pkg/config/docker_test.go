package config

import (
	"testing"
)

func TestResolveHostForDocker_RemoteHostsUnchanged(t *testing.T) {
	// Non-local hosts pass through regardless of the runtime environment.
	tests := []struct {
		input    string
		expected string
	}{
		{"warehouse.internal", "warehouse.internal"},
		{"192.168.1.100", "192.168.1.100"},
		{"host.docker.internal", "host.docker.internal"},
	}

	for _, tt := range tests {
		if got := ResolveHostForDocker(tt.input); got != tt.expected {
			t.Errorf("ResolveHostForDocker(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestResolveHostForDocker_LocalhostVariants(t *testing.T) {
	// Rewriting only happens inside a container, so assert relative to the
	// detected environment.
	for _, host := range []string{"localhost", "127.0.0.1"} {
		got := ResolveHostForDocker(host)
		if IsRunningInDocker() {
			if got != "host.docker.internal" {
				t.Errorf("ResolveHostForDocker(%q) in Docker = %q, want host.docker.internal", host, got)
			}
		} else {
			if got != host {
				t.Errorf("ResolveHostForDocker(%q) outside Docker = %q, want unchanged", host, got)
			}
		}
	}
}
