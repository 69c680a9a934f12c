package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/calm/config"
	"xdao.co/calm/metrics"
	"xdao.co/calm/permit"
)

func TestRun_ListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-list-backends"}, &out, &errOut); code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut.String())
	}
	for _, name := range []string{"badger", "memory", "redis"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("missing backend %q in %q", name, out.String())
		}
	}
}

func TestRun_RejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calm.json")
	if err := os.WriteFile(path, []byte(`{"token":{"name":"","symbol":"X"}}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-config", path}, &out, &errOut); code != 2 {
		t.Fatalf("exit=%d want 2", code)
	}
	if !strings.Contains(errOut.String(), "token.name") {
		t.Fatalf("stderr=%q", errOut.String())
	}
	if code := run(context.Background(), []string{"-log-level", "loud"}, &out, &errOut); code != 2 {
		t.Fatalf("bad log level: exit=%d want 2", code)
	}
}

func TestNode_ServesDefaultConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Metadata.Backends = []config.MetadataBackendConfig{{Dir: t.TempDir()}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, closeFn, err := node(cfg, logger, metrics.New())
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	defer closeFn()
	if srv.Metadata == nil {
		t.Fatalf("metadata store not wired")
	}
	d := srv.Submitter.Executor().Domain()
	if d.Name != cfg.Token.Name || d.Version != permit.DomainVersion {
		t.Fatalf("unexpected domain %+v", d)
	}
	if srv.Submitter.Executor().Account().Hex() != cfg.Contract {
		t.Fatalf("account=%s want contract", srv.Submitter.Executor().Account().Hex())
	}
	if srv.Submitter.FaucetEnabled() {
		t.Fatalf("default config must not enable the faucet")
	}

	cfg.Faucet.Enabled = true
	dev, devClose, err := node(cfg, logger, metrics.New())
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	defer devClose()
	if !dev.Submitter.FaucetEnabled() {
		t.Fatalf("faucet.enabled was not honored")
	}
}
