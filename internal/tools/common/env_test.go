package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line   string
		key    string
		value  string
		wantOK bool
	}{
		{line: "DATABASE_URL=postgres://x", key: "DATABASE_URL", value: "postgres://x", wantOK: true},
		{line: `  MAIL_FROM = "ops@labrental.test" `, key: "MAIL_FROM", value: "ops@labrental.test", wantOK: true},
		{line: "export APP_ENV='test'", key: "APP_ENV", value: "test", wantOK: true},
		{line: "JWT_SECRET=a=b=c", key: "JWT_SECRET", value: "a=b=c", wantOK: true},
		{line: "# comment", wantOK: false},
		{line: "", wantOK: false},
		{line: "NO_EQUALS", wantOK: false},
		{line: "=value", wantOK: false},
	}
	for _, tc := range tests {
		k, v, ok := parseEnvLine(tc.line)
		if ok != tc.wantOK || k != tc.key || v != tc.value {
			t.Fatalf("%q: got (%q, %q, %v) want (%q, %q, %v)", tc.line, k, v, ok, tc.key, tc.value, tc.wantOK)
		}
	}
}

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LABRENTAL_TOOL_A=from-file\nLABRENTAL_TOOL_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LABRENTAL_TOOL_A", "from-env")
	t.Setenv("LABRENTAL_TOOL_B", "")
	os.Unsetenv("LABRENTAL_TOOL_B")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("LABRENTAL_TOOL_A"); got != "from-env" {
		t.Fatalf("existing value overwritten: %q", got)
	}
	if got := os.Getenv("LABRENTAL_TOOL_B"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected nil for missing file, got %v", err)
	}
}
