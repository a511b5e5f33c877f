package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/trading-backend/internal/credentials"
)

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fallback.env")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing fallback file: %v", err)
	}
	return path
}

func TestGetPrefersEnvVarOverFile(t *testing.T) {
	path := writeEnvFile(t, "API_KEY=from-file\n")
	t.Setenv("API_KEY", "from-env")

	src := credentials.New(path)
	v, err := src.Get("API_KEY", true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "from-env" {
		t.Errorf("got %q, want %q", v, "from-env")
	}
}

func TestGetFallsBackToFile(t *testing.T) {
	path := writeEnvFile(t, "export API_KEY=\"quoted-value\"\n")

	src := credentials.New(path)
	v, err := src.Get("API_KEY", true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "quoted-value" {
		t.Errorf("got %q, want %q", v, "quoted-value")
	}
}

func TestGetMissingRequiredReturnsError(t *testing.T) {
	src := credentials.New(filepath.Join(t.TempDir(), "absent.env"))
	if _, err := src.Get("DOES_NOT_EXIST", true); err == nil {
		t.Error("expected an error for a missing required credential")
	}
}

func TestGetMissingOptionalReturnsEmpty(t *testing.T) {
	src := credentials.New(filepath.Join(t.TempDir(), "absent.env"))
	v, err := src.Get("DOES_NOT_EXIST", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "" {
		t.Errorf("got %q, want empty string", v)
	}
}

func TestGetLoadsFileOnlyOnce(t *testing.T) {
	path := writeEnvFile(t, "API_KEY=first\n")
	src := credentials.New(path)

	if v, err := src.Get("API_KEY", true); err != nil || v != "first" {
		t.Fatalf("first Get: v=%q err=%v", v, err)
	}

	if err := os.WriteFile(path, []byte("API_KEY=second\n"), 0o600); err != nil {
		t.Fatalf("rewriting fallback file: %v", err)
	}

	if v, err := src.Get("API_KEY", true); err != nil || v != "first" {
		t.Fatalf("second Get: v=%q err=%v, want cached %q", v, err, "first")
	}
}
