package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "powderline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: postgres
  postgres_dsn: postgres://localhost/test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Scraper.TaskTimeout != 30*time.Second {
		t.Errorf("task timeout = %v", cfg.Scraper.TaskTimeout)
	}
	if cfg.Cache.TTL != 600*time.Second {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9191"
scraper:
  task_timeout: 5s
storage:
  backend: mongo
  mongo_uri: mongodb://localhost:27017
scheduler:
  enabled: true
  jobs:
    - spec: "0 6 * * *"
      batch: 0
    - spec: "0 12 * * *"
      batch: -1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9191" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Scraper.TaskTimeout != 5*time.Second {
		t.Errorf("task timeout = %v", cfg.Scraper.TaskTimeout)
	}
	if cfg.Storage.Backend != "mongo" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if len(cfg.Scheduler.Jobs) != 2 || cfg.Scheduler.Jobs[1].Batch != -1 {
		t.Errorf("jobs = %+v", cfg.Scheduler.Jobs)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"postgres without dsn", "storage:\n  backend: postgres\n"},
		{"mongo without uri", "storage:\n  backend: mongo\n"},
		{"unknown backend", "storage:\n  backend: dynamo\n"},
		{"empty cron spec", `
storage:
  backend: postgres
  postgres_dsn: postgres://x
scheduler:
  jobs:
    - spec: ""
      batch: 0
`},
	}
	for _, c := range cases {
		path := writeConfig(t, c.body)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}
