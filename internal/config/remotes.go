package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// RemotesConfig holds all named remotes and tracks which one is active.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is a named server profile. CompanyID and UserID are the identity
// a board session acts with; ReadOnly disables stage moves.
type Remote struct {
	URL         string `toml:"url"`
	Token       string `toml:"token,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty"`
	CompanyID   int64  `toml:"company_id,omitempty"`
	UserID      int64  `toml:"user_id,omitempty"`
	ReadOnly    bool   `toml:"read_only,omitempty"`
	Description string `toml:"description,omitempty"`
}

// ErrRemoteNotFound is returned when a named remote does not exist.
var ErrRemoteNotFound = errors.New("remote not found")

// RemotesPath returns ~/.local/state/dealboard/remotes.toml, creating the
// directory if needed.
func RemotesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "dealboard")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

// LoadRemotes reads the remotes file at path. A missing file is an empty
// config, not an error.
func LoadRemotes(path string) (RemotesConfig, error) {
	var cfg RemotesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RemotesConfig{Remotes: map[string]Remote{}}, nil
		}
		return RemotesConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// SaveRemotes writes cfg to path with owner-only permissions.
func SaveRemotes(path string, cfg RemotesConfig) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// ActiveRemote returns the active profile, if one is set and exists.
func (c RemotesConfig) ActiveRemote() (Remote, bool) {
	if c.Active == "" {
		return Remote{}, false
	}
	r, ok := c.Remotes[c.Active]
	return r, ok
}

// Use makes name the active remote. An empty name clears it.
func (c *RemotesConfig) Use(name string) error {
	if name != "" {
		if _, ok := c.Remotes[name]; !ok {
			return fmt.Errorf("%w: %q", ErrRemoteNotFound, name)
		}
	}
	c.Active = name
	return nil
}

// Remove deletes a remote, clearing Active if it pointed there.
func (c *RemotesConfig) Remove(name string) error {
	if _, ok := c.Remotes[name]; !ok {
		return fmt.Errorf("%w: %q", ErrRemoteNotFound, name)
	}
	delete(c.Remotes, name)
	if c.Active == name {
		c.Active = ""
	}
	return nil
}

// Names returns the remote names in sorted order.
func (c RemotesConfig) Names() []string {
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaskToken shows the first eight characters of a token.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
