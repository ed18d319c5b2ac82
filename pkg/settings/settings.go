// Package settings manages persistent user settings for the stargate CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/starsdaisuki/stargate/pkg/util"
)

// Transport names.
const (
	TransportLocal = "local"
	TransportSSH   = "ssh"
)

// Settings holds persistent user preferences. Zero values mean "use the
// default"; the Get* accessors apply the defaults.
type Settings struct {
	StoreBackend  string `json:"store_backend,omitempty"` // file, redis, memory
	StorePath     string `json:"store_path,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`

	Transport     string `json:"transport,omitempty"` // local, ssh
	SSHHost       string `json:"ssh_host,omitempty"`
	SSHPort       int    `json:"ssh_port,omitempty"`
	SSHUser       string `json:"ssh_user,omitempty"`
	SSHKeyFile    string `json:"ssh_key_file,omitempty"`
	SSHKnownHosts string `json:"ssh_known_hosts,omitempty"`
	SuBinary      string `json:"su_binary,omitempty"`

	Interface       string `json:"interface,omitempty"` // fallback when resolution finds nothing
	WirelessPattern string `json:"wireless_pattern,omitempty"`
	DNSChain        string `json:"dns_chain,omitempty"`
	ApplySettleMS   int    `json:"apply_settle_ms,omitempty"`
	SwitchSettleMS  int    `json:"switch_settle_ms,omitempty"`

	AuditLog        string `json:"audit_log,omitempty"`
	AuditMaxSizeMB  int    `json:"audit_max_size_mb,omitempty"`
	AuditMaxBackups int    `json:"audit_max_backups,omitempty"`
	MetricsAddr     string `json:"metrics_addr,omitempty"`
}

// Dir returns ~/.stargate, or the working directory if home is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stargate"
	}
	return filepath.Join(home, ".stargate")
}

// DefaultSettingsPath returns the default path for the settings file.
func DefaultSettingsPath() string {
	return filepath.Join(Dir(), "settings.json")
}

// Load reads settings from the default location.
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from path. A missing file yields empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location.
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to path. The file may hold a Redis password, so it
// is created owner-only.
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Clear resets all settings to defaults.
func (s *Settings) Clear() {
	*s = Settings{}
}

func (s *Settings) GetStoreBackend() string {
	return orDefault(s.StoreBackend, "file")
}

func (s *Settings) GetStorePath() string {
	return orDefault(s.StorePath, filepath.Join(Dir(), "profiles.yaml"))
}

func (s *Settings) GetRedisAddr() string {
	return orDefault(s.RedisAddr, "127.0.0.1:6379")
}

func (s *Settings) GetTransport() string {
	return orDefault(s.Transport, TransportLocal)
}

func (s *Settings) GetSSHPort() int {
	if s.SSHPort == 0 {
		return 22
	}
	return s.SSHPort
}

func (s *Settings) GetSSHUser() string {
	return orDefault(s.SSHUser, "root")
}

func (s *Settings) GetSuBinary() string {
	return orDefault(s.SuBinary, "su")
}

func (s *Settings) GetAuditLog() string {
	return orDefault(s.AuditLog, filepath.Join(Dir(), "audit.log"))
}

// AuditMaxSize returns the rotation threshold in bytes (default 10 MiB).
func (s *Settings) AuditMaxSize() int64 {
	mb := s.AuditMaxSizeMB
	if mb == 0 {
		mb = 10
	}
	return int64(mb) << 20
}

func (s *Settings) GetAuditMaxBackups() int {
	if s.AuditMaxBackups == 0 {
		return 5
	}
	return s.AuditMaxBackups
}

// ApplySettle is the pause between the command batch and gateway verification.
func (s *Settings) ApplySettle() time.Duration {
	return millis(s.ApplySettleMS, 300)
}

// SwitchSettle is the pause between a successful switch and the status refresh.
func (s *Settings) SwitchSettle() time.Duration {
	return millis(s.SwitchSettleMS, 1500)
}

func millis(v, def int) time.Duration {
	if v == 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// field binds a settings key to its struct field.
type field struct {
	get func(*Settings) string
	set func(*Settings, string) error
}

func stringField(p func(*Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error { *p(s) = v; return nil },
	}
}

func intField(p func(*Settings) *int) field {
	return field{
		get: func(s *Settings) string {
			if *p(s) == 0 {
				return ""
			}
			return strconv.Itoa(*p(s))
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				*p(s) = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("%q is not a non-negative integer: %w", v, util.ErrInvalidConfig)
			}
			*p(s) = n
			return nil
		},
	}
}

func choiceField(p func(*Settings) *string, choices ...string) field {
	f := stringField(p)
	f.set = func(s *Settings, v string) error {
		for _, c := range choices {
			if v == c || v == "" {
				*p(s) = v
				return nil
			}
		}
		return fmt.Errorf("%q must be one of %v: %w", v, choices, util.ErrInvalidConfig)
	}
	return f
}

var fields = map[string]field{
	"store_backend":     choiceField(func(s *Settings) *string { return &s.StoreBackend }, "file", "redis", "memory"),
	"store_path":        stringField(func(s *Settings) *string { return &s.StorePath }),
	"redis_addr":        stringField(func(s *Settings) *string { return &s.RedisAddr }),
	"redis_db":          intField(func(s *Settings) *int { return &s.RedisDB }),
	"redis_password":    stringField(func(s *Settings) *string { return &s.RedisPassword }),
	"transport":         choiceField(func(s *Settings) *string { return &s.Transport }, TransportLocal, TransportSSH),
	"ssh_host":          stringField(func(s *Settings) *string { return &s.SSHHost }),
	"ssh_port":          intField(func(s *Settings) *int { return &s.SSHPort }),
	"ssh_user":          stringField(func(s *Settings) *string { return &s.SSHUser }),
	"ssh_key_file":      stringField(func(s *Settings) *string { return &s.SSHKeyFile }),
	"ssh_known_hosts":   stringField(func(s *Settings) *string { return &s.SSHKnownHosts }),
	"su_binary":         stringField(func(s *Settings) *string { return &s.SuBinary }),
	"interface":         stringField(func(s *Settings) *string { return &s.Interface }),
	"wireless_pattern":  stringField(func(s *Settings) *string { return &s.WirelessPattern }),
	"dns_chain":         stringField(func(s *Settings) *string { return &s.DNSChain }),
	"apply_settle_ms":   intField(func(s *Settings) *int { return &s.ApplySettleMS }),
	"switch_settle_ms":  intField(func(s *Settings) *int { return &s.SwitchSettleMS }),
	"audit_log":         stringField(func(s *Settings) *string { return &s.AuditLog }),
	"audit_max_size_mb": intField(func(s *Settings) *int { return &s.AuditMaxSizeMB }),
	"audit_max_backups": intField(func(s *Settings) *int { return &s.AuditMaxBackups }),
	"metrics_addr":      stringField(func(s *Settings) *string { return &s.MetricsAddr }),
}

// Keys lists every settable key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stored (not defaulted) value of key.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q: %w", key, util.ErrInvalidConfig)
	}
	return f.get(s), nil
}

// Set parses and stores value under key. An empty value restores the default.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, util.ErrInvalidConfig)
	}
	return f.set(s, value)
}
