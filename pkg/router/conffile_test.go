package router

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfFileRouterSetUpstream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upstream.conf")
	r := NewConfFileRouter(path).WithService("orders")

	if _, ok := r.Upstream(); ok {
		t.Error("Expected no upstream before first write")
	}

	if err := r.SetUpstream(18001); err != nil {
		t.Fatalf("SetUpstream failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read conf: %v", err)
	}
	if !strings.Contains(string(data), "server 127.0.0.1:18001;") {
		t.Errorf("Conf missing upstream server line:\n%s", data)
	}
	if !strings.Contains(string(data), "upstream orders_upstream") {
		t.Errorf("Conf missing service upstream block:\n%s", data)
	}

	port, ok := r.Upstream()
	if !ok || port != 18001 {
		t.Errorf("Expected upstream 18001, got %d (%v)", port, ok)
	}
}

func TestConfFileRouterRecoversExistingConf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upstream.conf")

	if err := NewConfFileRouter(path).SetUpstream(18002); err != nil {
		t.Fatalf("SetUpstream failed: %v", err)
	}

	// A fresh invocation picks up where the last one left off
	r := NewConfFileRouter(path)
	port, ok := r.Upstream()
	if !ok || port != 18002 {
		t.Errorf("Expected recovered upstream 18002, got %d (%v)", port, ok)
	}
}

func TestConfFileRouterRevertIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upstream.conf")
	r := NewConfFileRouter(path)

	if err := r.SetUpstream(18001); err != nil {
		t.Fatalf("SetUpstream failed: %v", err)
	}
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read conf: %v", err)
	}

	if err := r.SetUpstream(18002); err != nil {
		t.Fatalf("SetUpstream failed: %v", err)
	}

	// Reverting twice must land in the same state as reverting once
	for i := 0; i < 2; i++ {
		if err := r.SetUpstream(18001); err != nil {
			t.Fatalf("Revert %d failed: %v", i+1, err)
		}
		reverted, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read conf: %v", err)
		}
		if string(reverted) != string(original) {
			t.Errorf("Revert %d produced different conf:\n%s\nwant:\n%s", i+1, reverted, original)
		}
		if port, _ := r.Upstream(); port != 18001 {
			t.Errorf("Revert %d: expected upstream 18001, got %d", i+1, port)
		}
	}
}

func TestConfFileRouterTestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upstream.conf")
	r := NewConfFileRouter(path)

	// No command configured: existence of the conf file is the test
	if err := r.TestConfig(); err == nil {
		t.Error("Expected error with no conf file written")
	}
	if err := r.SetUpstream(18001); err != nil {
		t.Fatalf("SetUpstream failed: %v", err)
	}
	if err := r.TestConfig(); err != nil {
		t.Errorf("Expected passing test after write, got: %v", err)
	}

	r = r.WithTestCommand([]string{"true"})
	if err := r.TestConfig(); err != nil {
		t.Errorf("Expected passing test command, got: %v", err)
	}

	r = r.WithTestCommand([]string{"sh", "-c", "echo bad syntax >&2; exit 1"})
	err := r.TestConfig()
	if err == nil {
		t.Fatal("Expected failing test command to surface an error")
	}
	if !strings.Contains(err.Error(), "bad syntax") {
		t.Errorf("Expected command output in error, got: %v", err)
	}
}

func TestConfFileRouterReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upstream.conf")
	r := NewConfFileRouter(path)

	// No reload command: rewrite alone is sufficient
	if err := r.Reload(); err != nil {
		t.Errorf("Expected no-op reload, got: %v", err)
	}

	marker := filepath.Join(t.TempDir(), "reloaded")
	r = r.WithReloadCommand([]string{"touch", marker})
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("Expected reload command to have run")
	}

	r = r.WithReloadCommand([]string{"false"})
	if err := r.Reload(); err == nil {
		t.Error("Expected failing reload command to surface an error")
	}
}

func TestParseUpstream(t *testing.T) {
	tests := []struct {
		name    string
		content string
		port    int
		wantErr bool
	}{
		{
			name:    "written format",
			content: confHeader + "\nupstream app_upstream {\n    server 127.0.0.1:8001;\n}\n",
			port:    8001,
		},
		{
			name:    "no server line",
			content: "upstream app_upstream {\n}\n",
			wantErr: true,
		},
		{
			name:    "garbage port",
			content: "server 127.0.0.1:none;\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "upstream.conf")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write conf: %v", err)
			}

			port, err := parseUpstream(path)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseUpstream failed: %v", err)
			}
			if port != tt.port {
				t.Errorf("Expected port %d, got %d", tt.port, port)
			}
		})
	}
}
