package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecuteUnknownCommand(t *testing.T) {
	err := Execute(context.Background(), []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), `unknown command "bogus"`) {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestExecuteHelp(t *testing.T) {
	for _, arg := range []string{"help", "-h", "--help"} {
		if err := Execute(context.Background(), []string{arg}); err != nil {
			t.Fatalf("%s: unexpected error %v", arg, err)
		}
	}
}

func TestServeRejectsBadPort(t *testing.T) {
	err := serve(context.Background(), []string{"--env-file", "", "--port", "70000"})
	if err == nil || !strings.Contains(err.Error(), "valid TCP port") {
		t.Fatalf("expected port error, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	const key = "ASKRELAY_TEST_ENV_FILE_VALUE"
	t.Setenv(key, "")
	os.Unsetenv(key)

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("expected value from env file, got %q", got)
	}
}

func TestLoadEnvFileMissingIsIgnored(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	logger := newLogger("warn")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info must be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("warn must be enabled at warn level")
	}
}
