package repo

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// configFileName holds repository-local settings under .git/.
const configFileName = "minigit.toml"

// Config stores repository-local settings. A clone records where it came
// from; there is a single remote.
type Config struct {
	Remote RemoteConfig `toml:"remote"`
}

// RemoteConfig is the remote a repository was cloned from.
type RemoteConfig struct {
	URL    string `toml:"url,omitempty"`
	Branch string `toml:"branch,omitempty"`
}

func (r *Repo) configPath() string {
	return filepath.Join(r.GitDir, configFileName)
}

// ReadConfig reads .git/minigit.toml. A missing file returns an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	path := r.configPath()
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, errkind.Errorf(errkind.IoFailure, "read config %s: %s", path, err)
	}
	return &cfg, nil
}

// WriteConfig atomically writes .git/minigit.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return errkind.Errorf(errkind.IoFailure, "write config: encode: %s", err)
	}

	tmp, err := os.CreateTemp(r.GitDir, ".config-tmp-*")
	if err != nil {
		return errkind.Errorf(errkind.IoFailure, "write config: tmpfile in %s: %s", r.GitDir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errkind.Errorf(errkind.IoFailure, "write config: write %s: %s", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errkind.Errorf(errkind.IoFailure, "write config: close %s: %s", tmpName, err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return errkind.Errorf(errkind.IoFailure, "write config: rename to %s: %s", r.configPath(), err)
	}
	return nil
}

// SetRemote records the remote URL and the branch that was checked out.
func (r *Repo) SetRemote(remoteURL, branch string) error {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return errkind.Errorf(errkind.Usage, "set remote: URL is required")
	}
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remote = RemoteConfig{URL: remoteURL, Branch: strings.TrimPrefix(branch, "refs/heads/")}
	return r.WriteConfig(cfg)
}
