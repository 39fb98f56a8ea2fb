package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Server.Port != 8000 || c.Engine.Horizon != 10*time.Minute || c.Engine.Headway != 2*time.Minute {
		t.Fatalf("unexpected defaults: port=%d horizon=%s headway=%s", c.Server.Port, c.Engine.Horizon, c.Engine.Headway)
	}
	if c.Engine.MinGap != time.Second || c.Engine.DefaultPriority != "normal" {
		t.Fatalf("unexpected engine defaults: %+v", c.Engine)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
server:
  port: 9090
engine:
  horizon: 15m
  priorities:
    express: 5
    normal: 2
  trains:
    T-205: express
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Environment != "production" || c.Server.Port != 9090 {
		t.Fatalf("yaml not applied: %+v", c.Server)
	}
	if c.Engine.Horizon != 15*time.Minute || c.Engine.Headway != 2*time.Minute {
		t.Fatalf("engine horizon=%s headway=%s", c.Engine.Horizon, c.Engine.Headway)
	}
	if c.Engine.Priorities["express"] != 5 || c.Engine.Trains["T-205"] != "express" {
		t.Fatalf("priority tables not parsed: %+v", c.Engine)
	}
	// untouched sections keep their defaults
	if c.Server.ReadTimeout != 15*time.Second || c.Kafka.StatusTopic != "train.status" {
		t.Fatalf("defaults lost: %s %s", c.Server.ReadTimeout, c.Kafka.StatusTopic)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"port":     "server:\n  port: 70000\n",
		"horizon":  "engine:\n  horizon: -1m\n",
		"kafka":    "kafka:\n  enabled: true\n",
		"priority": "engine:\n  priorities:\n    express: -1\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"TRAINCTL_PORT":     "8181",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"REDIS_ADDR":        "cache:6380",
		"TRAINCTL_TOPOLOGY": "https://example.test/topology.yaml",
	}
	c := Default()
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.Server.Port != 8181 || !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("env not applied: port=%d kafka=%+v", c.Server.Port, c.Kafka.Brokers)
	}
	if !c.Redis.Enabled || c.Redis.Host != "cache" || c.Redis.Port != 6380 {
		t.Fatalf("redis addr not applied: %s:%d", c.Redis.Host, c.Redis.Port)
	}
	if !strings.HasPrefix(c.Topology.Source, "https://") {
		t.Fatalf("topology source not applied: %s", c.Topology.Source)
	}

	env = map[string]string{"TRAINCTL_PORT": "eighty"}
	if err := Default().applyEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected bad port to fail")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("environment: test\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "test" {
		t.Fatalf("environment %q", c.Environment)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
