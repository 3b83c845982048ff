package replisync

import (
	"testing"
	"time"
)

func TestConfigValidateDisconnectTimeout(t *testing.T) {
	c := Config{
		TickInterval:      16 * time.Millisecond,
		HeartbeatInterval: 1 * time.Second,
		DisconnectTimeout: 1500 * time.Millisecond,
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error: disconnect timeout under 2x heartbeat")
	}

	c.DisconnectTimeout = 2 * time.Second
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestConfigValidateTickInterval(t *testing.T) {
	c := Config{
		TickInterval:      0,
		HeartbeatInterval: time.Second,
		DisconnectTimeout: 2 * time.Second,
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error: zero tick interval")
	}
}

func TestConfigValidateLinkConditionLoss(t *testing.T) {
	c := Config{
		TickInterval:      16 * time.Millisecond,
		HeartbeatInterval: time.Second,
		DisconnectTimeout: 2 * time.Second,
		LinkCondition:     &LinkCondition{Loss: 1.5},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error: loss out of [0,1]")
	}

	c.LinkCondition.Loss = 0.1
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("nonexistent-config-name", t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TickInterval != 16*time.Millisecond {
		t.Fatalf("TickInterval default = %v", cfg.TickInterval)
	}
	if cfg.Socket.SignalingAddr == "" {
		t.Fatal("expected a default signaling address")
	}
}
