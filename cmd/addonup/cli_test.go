package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/addonvalidator/internal/config"
	"github.com/JonMunkholm/addonvalidator/internal/core"
	"github.com/JonMunkholm/addonvalidator/internal/store/memstore"
	"github.com/JonMunkholm/addonvalidator/internal/web"
)

const installRDF = `<?xml version="1.0"?>
<RDF xmlns="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
     xmlns:em="http://www.mozilla.org/2004/em-rdf#">
  <Description about="urn:mozilla:install-manifest">
    <em:id>sample@example.org</em:id>
    <em:version>1.0</em:version>
    <em:type>4</em:type>
  </Description>
</RDF>`

func writePackage(t *testing.T, name string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("install.rdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(installRDF)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// startService runs the validator web service in-process.
func startService(t *testing.T) string {
	t.Helper()
	jobs, err := memstore.New()
	if err != nil {
		t.Fatal(err)
	}
	svc := core.NewService(jobs, nil, core.ServiceConfig{
		MaxFileSize:   1 << 20,
		MaxConcurrent: 2,
		TempDir:       t.TempDir(),
	})
	srv := web.NewServer(svc, &config.Config{
		Server: config.ServerConfig{RequestTimeout: 30 * time.Second},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20},
	})
	ts := httptest.NewServer(srv.Router())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Close()
		svc.WaitForJobs(ctx)
		srv.Shutdown(ctx)
	})
	return ts.URL
}

// testCommand returns a bare command writing to buf, with clientCfg set.
func testCommand(t *testing.T, cfg config.ClientConfig, buf *bytes.Buffer) *cobra.Command {
	t.Helper()
	clientCfg = &cfg
	t.Cleanup(func() { clientCfg = nil })

	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetContext(context.Background())
	return cmd
}

func TestValidateCmd(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		access  bool
		wantErr bool
		wantOut string
	}{
		{"package", func(t *testing.T) string { return writePackage(t, "theme.jar") }, true, false, "ok:"},
		{"bad extension", func(t *testing.T) string { return writePackage(t, "theme.zip") }, true, true, "Only .xpi and .jar"},
		{"not a zip", func(t *testing.T) string {
			p := filepath.Join(t.TempDir(), "fake.xpi")
			os.WriteFile(p, []byte("hello"), 0o644)
			return p
		}, true, true, "does not look like an add-on"},
		{"not a zip without content access", func(t *testing.T) string {
			p := filepath.Join(t.TempDir(), "fake.xpi")
			os.WriteFile(p, []byte("hello"), 0o644)
			return p
		}, false, false, "ok:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultClientConfig()
			cfg.ContentAccess = tt.access

			var buf bytes.Buffer
			err := runValidate(testCommand(t, cfg, &buf), []string{tt.path(t)})
			if tt.wantErr && !errors.Is(err, ErrRejected) {
				t.Errorf("err = %v, want ErrRejected", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.wantOut) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.wantOut)
			}
		})
	}
}

func TestSubmitCmd_WaitForResult(t *testing.T) {
	for _, access := range []bool{true, false} {
		name := "ajax"
		if !access {
			name = "form post"
		}
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultClientConfig()
			cfg.Server = startService(t)
			cfg.ContentAccess = access
			cfg.PollInterval = 20 * time.Millisecond

			waitFlag = true
			defer func() { waitFlag = false }()

			var buf bytes.Buffer
			err := runSubmit(testCommand(t, cfg, &buf), []string{writePackage(t, "theme.xpi")})
			if err != nil {
				t.Fatalf("submit: %v\n%s", err, buf.String())
			}

			out := buf.String()
			for _, want := range []string{"status: " + cfg.Server + "/validator/status/", "result: " + cfg.Server + "/validator/result/", "theme.xpi: Theme, 0 errors"} {
				if !strings.Contains(out, want) {
					t.Errorf("output %q does not contain %q", out, want)
				}
			}
		})
	}
}

func TestSubmitCmd_RejectedLocally(t *testing.T) {
	cfg := config.DefaultClientConfig()
	cfg.Server = startService(t)

	var buf bytes.Buffer
	err := runSubmit(testCommand(t, cfg, &buf), []string{writePackage(t, "theme.zip")})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if !strings.Contains(buf.String(), "You must choose a JAR or XPI file.") {
		t.Errorf("missing alert in %q", buf.String())
	}
}

func TestSubmitCmd_ServiceRejectsFormPost(t *testing.T) {
	cfg := config.DefaultClientConfig()
	cfg.Server = startService(t)
	cfg.ContentAccess = false

	path := filepath.Join(t.TempDir(), "fake.xpi")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	err := runSubmit(testCommand(t, cfg, &buf), []string{path})
	if !errors.Is(err, ErrServiceRejected) {
		t.Fatalf("err = %v, want ErrServiceRejected", err)
	}
	if !strings.Contains(err.Error(), "addon") {
		t.Errorf("error %q does not name the hint", err)
	}
}

func TestCheckDestination(t *testing.T) {
	if _, err := checkDestination("http://h/validator/?error=upload"); !errors.Is(err, ErrServiceRejected) {
		t.Errorf("err = %v, want ErrServiceRejected", err)
	}
	got, err := checkDestination("http://h/validator/status/abc/")
	if err != nil || got != "http://h/validator/status/abc/" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestRootCmd_FlagsOverrideConfig(t *testing.T) {
	for _, key := range []string{"ADDONUP_SERVER", "ADDONUP_CONTENT_ACCESS", "ADDONUP_WAIT", "ADDONUP_POLL_INTERVAL",
		"ADDONUP_TIMEOUT", "ADDONUP_LOG_LEVEL", "ADDONUP_LOG_FORMAT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server: http://from-file:9000\nlog:\n  level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ADDONUP_SERVER", "http://from-env:9000")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"validate", "--config", cfgPath, "--server", "http://from-flag:9000", "--no-content-access", writePackage(t, "a.xpi")})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath, serverURL, noContentRead = "", "", false
		clientCfg = nil
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if clientCfg.Server != "http://from-flag:9000" {
		t.Errorf("Server = %q, want flag value", clientCfg.Server)
	}
	if clientCfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want value from file", clientCfg.Log.Level)
	}
	if clientCfg.ContentAccess {
		t.Error("ContentAccess should be disabled by flag")
	}
}
