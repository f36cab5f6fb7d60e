package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.APIServer.Port != "8081" {
		t.Errorf("APIServer.Port = %q, want 8081", cfg.APIServer.Port)
	}
	if cfg.Relay.HistoryLimit != 50 {
		t.Errorf("Relay.HistoryLimit = %d, want 50", cfg.Relay.HistoryLimit)
	}
	if cfg.Relay.OfflineQueueSize != 256 {
		t.Errorf("Relay.OfflineQueueSize = %d, want 256", cfg.Relay.OfflineQueueSize)
	}
	if cfg.Relay.StoreTimeout != 5*time.Second {
		t.Errorf("Relay.StoreTimeout = %v, want 5s", cfg.Relay.StoreTimeout)
	}
	if cfg.WebSocket.SendBufferSize != 256 {
		t.Errorf("WebSocket.SendBufferSize = %d, want 256", cfg.WebSocket.SendBufferSize)
	}
	if cfg.WebSocket.MaxMessageSizeBytes != 65536 {
		t.Errorf("WebSocket.MaxMessageSizeBytes = %d, want 65536", cfg.WebSocket.MaxMessageSizeBytes)
	}
	if cfg.Auth.JWTExpiry != 24*time.Hour {
		t.Errorf("Auth.JWTExpiry = %v, want 24h", cfg.Auth.JWTExpiry)
	}
	if !cfg.Kafka.Enabled {
		t.Error("Kafka.Enabled = false, want true by default")
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("Database.Type = %q, want postgres", cfg.Database.Type)
	}
}

func TestLoadConfigMissingFileIsNotFatal(t *testing.T) {
	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("LoadConfig with no config file returned error: %v", err)
	}
}
