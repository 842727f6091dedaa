package config

import (
	"reflect"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TCP_ADDR", "UDP_ADDR", "HTTP_ADDR", "STORE_DRIVER", "MAX_LOGIN_ATTEMPTS", "BCRYPT_COST", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.TCPAddr != ":7070" || cfg.UDPAddr != ":7071" {
		t.Errorf("addresses = %q, %q", cfg.TCPAddr, cfg.UDPAddr)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, want disabled", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != "file" {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts = %d", cfg.MaxLoginAttempts)
	}
	if cfg.BcryptCost != bcrypt.DefaultCost {
		t.Errorf("BcryptCost = %d", cfg.BcryptCost)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TCP_ADDR", ":9000")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "5")
	t.Setenv("SEND_BUFFER", "not-a-number")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if cfg.TCPAddr != ":9000" || cfg.StoreDriver != "sqlite" || cfg.MaxLoginAttempts != 5 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.SendBuffer != 256 {
		t.Errorf("SendBuffer = %d, want fallback 256", cfg.SendBuffer)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CorsOrigins, want) {
		t.Errorf("CorsOrigins = %q, want %q", cfg.CorsOrigins, want)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "bogus", LogFormat: "json"}
	if cfg.NewLogger() == nil {
		t.Fatal("nil logger")
	}
}
