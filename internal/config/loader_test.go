package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Coordinator.Debounce != 180*time.Second || cfg.Coordinator.ConfidenceThreshold != 50 {
		t.Errorf("unexpected defaults %+v", cfg.Coordinator)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "trackerd.yaml", `
coordinator:
  debounce: 90s
  lastGeofencePolicy: if_absent
store:
  driver: file
  path: /var/lib/trackerd/prefs.yaml
server:
  addr: ":9090"
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Coordinator.Debounce != 90*time.Second {
		t.Errorf("debounce = %v", cfg.Coordinator.Debounce)
	}
	if cfg.Coordinator.GeofenceRadiusMeters != 100 {
		t.Errorf("unset fields should keep defaults, radius = %v", cfg.Coordinator.GeofenceRadiusMeters)
	}
	if cfg.Store.Driver != "file" || cfg.Server.Addr != ":9090" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"policy":      "coordinator:\n  lastGeofencePolicy: sometimes\n",
		"file driver": "store:\n  driver: file\n",
		"redis addr":  "store:\n  driver: redis\n",
		"confidence":  "coordinator:\n  confidenceThreshold: 150\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "bad.yaml", body), ""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	env := writeFile(t, ".env", "TRACKCOORD_REDIS_ADDR=localhost:6379\n")
	t.Setenv(EnvStoreDriver, "redis")
	t.Setenv(EnvDebounce, "2m")
	// the .env file sets this one; register it for restore, then clear it
	t.Setenv(EnvRedisAddr, "")
	os.Unsetenv(EnvRedisAddr)

	cfg, err := Load("", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "redis" || cfg.Store.RedisAddr != "localhost:6379" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Coordinator.Debounce != 2*time.Minute {
		t.Errorf("debounce = %v", cfg.Coordinator.Debounce)
	}
}

func TestMissingEnvFileIgnored(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestOptions(t *testing.T) {
	opts, err := Default().Coordinator.Options()
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) == 0 {
		t.Fatal("no options")
	}
	bad := Default().Coordinator
	bad.LastGeofencePolicy = "sometimes"
	if _, err := bad.Options(); err == nil {
		t.Error("expected policy error")
	}
}
