package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. They win over the file so secrets can stay out of it.
const (
	EnvTelegramToken = "FINTRACK_TELEGRAM_TOKEN"
	EnvStorageDSN    = "FINTRACK_STORAGE_DSN"
	EnvTimezone      = "FINTRACK_TIMEZONE"
	EnvAdminToken    = "FINTRACK_ADMIN_TOKEN"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvTelegramToken, &c.Push.Telegram.Token)
	set(EnvStorageDSN, &c.Storage.DSN)
	set(EnvTimezone, &c.Timezone)
	set(EnvAdminToken, &c.Admin.Token)
}
