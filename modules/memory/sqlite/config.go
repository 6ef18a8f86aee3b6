package sqlite

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

const (
	defaultBusyTimeout = 5 * time.Second
	defaultDBFile      = "memory.db"
)

// Config is the "modules: memory.sqlite" section of cvchat.yaml.
type Config struct {
	// Path is the history database. A relative path lives under data_dir;
	// empty means <data_dir>/memory.db.
	Path string `yaml:"path"`

	// WAL lets the gateway read history while a turn is being written.
	// Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is how long an append waits for the write lock, e.g. "5s".
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// resolve fills defaults and anchors Path to dataDir. It fails when no
// location can be derived, rather than writing memory.db to the working
// directory.
func (c *Config) resolve(dataDir string) error {
	if c.WAL == nil {
		wal := true
		c.WAL = &wal
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}

	switch {
	case c.Path == "" && dataDir == "":
		return errors.New("sqlite: data_dir or path is required")
	case c.Path == "":
		c.Path = filepath.Join(dataDir, defaultDBFile)
	case !filepath.IsAbs(c.Path) && dataDir != "":
		c.Path = filepath.Join(dataDir, c.Path)
	}
	return nil
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %s", c.BusyTimeout)
	}
	return nil
}

// dsn returns the driver name for Path with the pragmas every pooled
// connection must run.
func (c *Config) dsn() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	if c.walEnabled() {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return c.Path + "?" + q.Encode()
}
