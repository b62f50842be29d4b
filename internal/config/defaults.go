package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"database": map[string]interface{}{
			"driver":      DriverPostgres,
			"dsn":         "",
			"max_retries": 5,
			"retry_delay": "5s",
			"log_level":   "warn",
		},
		"discord": map[string]interface{}{
			"token": "",
		},
		"schedule": map[string]interface{}{
			"timezone":    "Asia/Kolkata",
			"sweep_cron":  "0 0 * * *", // local midnight
			"expiry_cron": "@every 1h",
		},
		"sweep": map[string]interface{}{
			"concurrency":      1,
			"delivery_timeout": "10s",
		},
		"partnership": map[string]interface{}{
			"invite_ttl": "24h",
		},
		"api": map[string]interface{}{
			"addr":            ":8080",
			"jwt_secret":      "",
			"jwt_expiry":      "24h",
			"allowed_origins": []string{"http://localhost:5173"},
			"trusted_proxies": []string{"127.0.0.1"},
		},
		"persona": map[string]interface{}{
			"name":              "Seraphina",
			"default_honorific": "Master",
		},
		"log": map[string]interface{}{
			"level":       "info",
			"development": false,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
