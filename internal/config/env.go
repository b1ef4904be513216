package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("BOT_TOKEN"); ok {
		c.Telegram.Token = v
	}
	if v, ok := get("OWNER_ID"); ok {
		ids, err := parseIDList(v)
		if err != nil {
			return fmt.Errorf("OWNER_ID: %w", err)
		}
		c.Telegram.OwnerUserIDs = ids
	}
	if v, ok := get("SUPPORT_CHANNEL"); ok {
		c.Telegram.SupportChannel = v
	}
	if v, ok := get("GROUP_LOG"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("GROUP_LOG: invalid id %q", v)
		}
		c.Telegram.GroupLog = id
	}
	if v, ok := get("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := get("STORAGE_PATH"); ok {
		c.Storage.Path = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.Storage.DSN = v
		if strings.TrimSpace(c.Storage.Driver) == "" || c.Storage.Driver == "file" {
			c.Storage.Driver = "postgres"
		}
	}
	if v, ok := get("HEALTH_ADDR"); ok {
		c.Health.Addr = v
		c.Health.Enabled = true
	}
	if v, ok := get("PORT"); ok {
		c.Health.Addr = ":" + v
		c.Health.Enabled = true
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return nil
}

func parseIDList(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
