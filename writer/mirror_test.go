package writer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appconfig "okxflow/config"
)

func TestMirrorUpload(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			gotPath = r.URL.Path
			gotBody, _ = io.ReadAll(r.Body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &appconfig.Config{}
	cfg.Storage.S3.Enabled = true
	cfg.Storage.S3.Bucket = "artifacts"
	cfg.Storage.S3.Region = "us-east-1"
	cfg.Storage.S3.Endpoint = srv.URL
	cfg.Storage.S3.PathStyle = true
	cfg.Storage.S3.AccessKeyID = "test"
	cfg.Storage.S3.SecretAccessKey = "test"
	cfg.Storage.S3.Prefix = "okxflow"

	m, err := NewMirror(cfg)
	if err != nil {
		t.Fatalf("NewMirror failed: %v", err)
	}

	local := filepath.Join(t.TempDir(), "artifact.parquet")
	if err := os.WriteFile(local, []byte("parquet-bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := m.Upload(context.Background(), local, "swap/aggtrades/2024-01-15/a.parquet"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotPath != "/artifacts/okxflow/swap/aggtrades/2024-01-15/a.parquet" {
		t.Errorf("unexpected object path: %s", gotPath)
	}
	// The SDK may wrap the payload in aws-chunked encoding with a trailing
	// checksum, so assert on containment rather than equality.
	if !strings.Contains(string(gotBody), "parquet-bytes") {
		t.Errorf("uploaded body does not carry the artifact bytes: %q", gotBody)
	}
}

func TestMirrorUploadMissingFile(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.Bucket = "artifacts"
	cfg.Storage.S3.Region = "us-east-1"
	cfg.Storage.S3.AccessKeyID = "test"
	cfg.Storage.S3.SecretAccessKey = "test"

	m, err := NewMirror(cfg)
	if err != nil {
		t.Fatalf("NewMirror failed: %v", err)
	}
	if err := m.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.parquet"), "k"); err == nil {
		t.Fatalf("expected error for missing local artifact")
	}
}
