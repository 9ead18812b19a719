package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	// ReceiptSecret signs HS256 result receipts.
	ReceiptSecret string

	// RuleCacheTTL bounds how long a resolved marking rule stays cached.
	RuleCacheTTL time.Duration

	// MailboxSize bounds the engine bus; saturated mailboxes are a
	// retryable transport failure.
	MailboxSize int

	LogLevel  string
	LogFormat string // text|json

	CORSOriginsOnline  []string
	CORSOriginsOffline []string
}

// Load reads configuration from GRADECORE_* environment variables, with any
// pre-bound flag values taking precedence (the cmd layer binds its cobra
// flags into the same viper instance).
func Load(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("GRADECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http-addr", ":8080")
	v.SetDefault("db-driver", "sqlite")
	v.SetDefault("db-dsn", "")
	v.SetDefault("receipt-secret", "dev-receipt-secret")
	v.SetDefault("rule-cache-ttl", 5*time.Minute)
	v.SetDefault("mailbox-size", 64)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("cors-origins-online", "https://exam.prepgrid.app")
	v.SetDefault("cors-origins-offline", "http://localhost:3000,http://localhost:5173")

	mode := Mode(v.GetString("mode"))
	if mode != ModeOnline {
		mode = ModeOffline
	}

	return Config{
		Mode:               mode,
		HTTPAddr:           v.GetString("http-addr"),
		DBDriver:           v.GetString("db-driver"),
		DBDSN:              v.GetString("db-dsn"),
		ReceiptSecret:      v.GetString("receipt-secret"),
		RuleCacheTTL:       v.GetDuration("rule-cache-ttl"),
		MailboxSize:        v.GetInt("mailbox-size"),
		LogLevel:           v.GetString("log-level"),
		LogFormat:          v.GetString("log-format"),
		CORSOriginsOnline:  splitCSV(v.GetString("cors-origins-online")),
		CORSOriginsOffline: splitCSV(v.GetString("cors-origins-offline")),
	}
}

// CORSOrigins returns the origin list matching the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
