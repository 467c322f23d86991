// Package rc loads regolith run control: the typed configuration threaded
// through every command.
package rc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/tailscale/hujson"
)

// Backend names.
const (
	BackendFilesystem = "filesystem"
	BackendMongoDB    = "mongodb"
	BackendSQLite     = "sqlite"
)

// FileName is the project run control file name.
const FileName = "regolithrc.json"

// Database describes one configured database.
type Database struct {
	Name      string   `json:"name"`
	URL       string   `json:"url,omitempty"`
	Path      string   `json:"path,omitempty"`
	Public    bool     `json:"public,omitempty"`
	Local     bool     `json:"local,omitempty"`
	Backend   string   `json:"backend,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`
}

// Allows reports whether the collection passes the whitelist and blacklist.
func (d Database) Allows(collection string) bool {
	if len(d.Whitelist) > 0 && !slices.Contains(d.Whitelist, collection) {
		return false
	}

	return !slices.Contains(d.Blacklist, collection)
}

// Store describes a file storage location.
type Store struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Path   string `json:"path,omitempty"`
	Public bool   `json:"public,omitempty"`
	Local  bool   `json:"local,omitempty"`
}

// Email holds SMTP settings for the email command.
type Email struct {
	From     string `json:"from,omitempty"`
	URL      string `json:"url,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// DeployTarget is one entry of the deploy list.
type DeployTarget struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Method string `json:"method,omitempty"`
}

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Databases     []Database     `json:"databases,omitempty"`
	Stores        []Store        `json:"stores,omitempty"`
	BuildDir      string         `json:"builddir,omitempty"`
	Email         Email          `json:"email,omitzero"`
	Deploy        []DeployTarget `json:"deploy,omitempty"`
	DefaultUserID string         `json:"default_user_id,omitempty"`
	MongoDBPath   string         `json:"mongodbpath,omitempty"`
	GithubToken   string         `json:"github_token,omitempty"`

	// Resolved values (computed, not serialized)
	Cwd         string  `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	BuildDirAbs string  `json:"-"` // Absolute path to the build directory
	Sources     Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	User    string // Path to user config if loaded, empty otherwise
	Project string // Path to project rc if loaded, empty otherwise
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BuildDir: "_build",
	}
}

// Database returns the configured database with the given name.
func (c *Config) Database(name string) (Database, bool) {
	for _, db := range c.Databases {
		if db.Name == name {
			return db, true
		}
	}

	return Database{}, false
}

// Store returns the configured store with the given name.
func (c *Config) Store(name string) (Store, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}

	return Store{}, false
}

// DatabaseNames returns database names in priority order, lowest first.
func (c *Config) DatabaseNames() []string {
	names := make([]string, len(c.Databases))
	for i, db := range c.Databases {
		names[i] = db.Name
	}

	return names
}

// Resolve turns a path relative to the working directory into an absolute one.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(c.Cwd, path)
}

// userConfigPath returns the path to the user config file.
// Uses $XDG_CONFIG_HOME/regolith/user.json if set, otherwise ~/.config/regolith/user.json.
// Returns empty string if home directory cannot be determined.
func userConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "regolith", "user.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "regolith", "user.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride  string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath       string            // -c/--config flag value
	BuildDirOverride string            // --builddir flag value; empty means no override
	Databases        []string          // --db flag values; narrow the database list
	RequireProject   bool              // fail with ErrRCNotFound if no project rc exists
	Env              map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. User config (~/.config/regolith/user.json or $XDG_CONFIG_HOME/regolith/user.json)
// 3. Project rc at default location (regolithrc.json) or explicit -c path
// 4. CLI overrides.
//
// Each layer replaces scalar values of the previous one. Databases and
// stores are unioned by name, then --db narrows the database list.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
	}

	cfg := Default()

	if path := userConfigPath(input.Env); path != "" {
		userCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.User = path
			cfg = merge(cfg, userCfg)
		}
	}

	projectCfg, projectPath, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	if projectPath == "" && input.RequireProject {
		return Config{}, fmt.Errorf("%w: %s", ErrRCNotFound, filepath.Join(workDir, FileName))
	}

	cfg.Sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	if input.BuildDirOverride != "" {
		cfg.BuildDir = input.BuildDirOverride
	}

	cfg.Databases, err = filterDatabases(cfg.Databases, input.Databases)
	if err != nil {
		return Config{}, err
	}

	normalize(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.Cwd = workDir
	cfg.BuildDirAbs = cfg.Resolve(cfg.BuildDir)

	return cfg, nil
}

// loadProject loads the project rc or an explicit config file.
// Returns the config and the path if loaded.
func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		path := filepath.Join(workDir, FileName)

		cfg, loaded, err := loadFile(path, false)
		if err != nil || !loaded {
			return Config{}, "", err
		}

		return cfg, path, nil
	}

	path := configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	if _, err := os.Stat(path); err != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}

	cfg, _, err := loadFile(path, true)
	if err != nil {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadFile loads a config file. If mustExist is false, missing files return
// a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// Parse decodes a JSONC run control document.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// Names must be unique within one file; merge folds repeats together.
	if name, ok := repeatedName(cfg.Databases, func(d Database) string { return d.Name }); ok {
		return Config{}, fmt.Errorf("%w: %s", ErrDuplicateDatabase, name)
	}

	if name, ok := repeatedName(cfg.Stores, func(s Store) string { return s.Name }); ok {
		return Config{}, fmt.Errorf("%w: %s", ErrDuplicateStore, name)
	}

	return cfg, nil
}

// repeatedName returns the first non-empty name that occurs twice in items.
func repeatedName[T any](items []T, name func(T) string) (string, bool) {
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		n := name(item)
		if n == "" {
			continue
		}

		if seen[n] {
			return n, true
		}

		seen[n] = true
	}

	return "", false
}

func merge(base, overlay Config) Config {
	base.Databases = unionByName(base.Databases, overlay.Databases, func(d Database) string { return d.Name })
	base.Stores = unionByName(base.Stores, overlay.Stores, func(s Store) string { return s.Name })

	if overlay.BuildDir != "" {
		base.BuildDir = overlay.BuildDir
	}

	if overlay.Email != (Email{}) {
		base.Email = overlay.Email
	}

	if overlay.Deploy != nil {
		base.Deploy = overlay.Deploy
	}

	if overlay.DefaultUserID != "" {
		base.DefaultUserID = overlay.DefaultUserID
	}

	if overlay.MongoDBPath != "" {
		base.MongoDBPath = overlay.MongoDBPath
	}

	if overlay.GithubToken != "" {
		base.GithubToken = overlay.GithubToken
	}

	return base
}

// unionByName keeps base order, replaces entries the overlay redefines in
// place and appends new overlay entries after them.
func unionByName[T any](base, overlay []T, name func(T) string) []T {
	if len(overlay) == 0 {
		return base
	}

	out := slices.Clone(base)

	for _, item := range overlay {
		idx := slices.IndexFunc(out, func(existing T) bool { return name(existing) == name(item) })
		if idx >= 0 {
			out[idx] = item
		} else {
			out = append(out, item)
		}
	}

	return out
}

// filterDatabases narrows dbs to the named ones, keeping configured order.
func filterDatabases(dbs []Database, keep []string) ([]Database, error) {
	if len(keep) == 0 {
		return dbs, nil
	}

	for _, name := range keep {
		if !slices.ContainsFunc(dbs, func(d Database) bool { return d.Name == name }) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, name)
		}
	}

	out := make([]Database, 0, len(keep))

	for _, db := range dbs {
		if slices.Contains(keep, db.Name) {
			out = append(out, db)
		}
	}

	return out, nil
}

func normalize(cfg *Config) {
	for i := range cfg.Databases {
		db := &cfg.Databases[i]

		switch db.Backend {
		case "", "fs":
			db.Backend = BackendFilesystem
		case "mongo":
			db.Backend = BackendMongoDB
		}

		if db.Path == "" && db.Backend == BackendFilesystem {
			db.Path = "db"
		}
	}
}

func validate(cfg Config) error {
	if cfg.BuildDir == "" {
		return ErrBuildDirEmpty
	}

	seen := make(map[string]bool)

	for _, db := range cfg.Databases {
		if db.Name == "" {
			return ErrDatabaseNameEmpty
		}

		if seen[db.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateDatabase, db.Name)
		}

		seen[db.Name] = true

		switch db.Backend {
		case BackendFilesystem, BackendMongoDB, BackendSQLite:
		default:
			return fmt.Errorf("%w: %s (database %s)", ErrUnknownBackend, db.Backend, db.Name)
		}
	}

	return nil
}
