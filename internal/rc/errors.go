package rc

import "errors"

// Error variables for run control loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrRCNotFound         = errors.New("no regolithrc.json found")
	ErrBuildDirEmpty      = errors.New("builddir cannot be empty")
	ErrDatabaseNameEmpty  = errors.New("database name cannot be empty")
	ErrDuplicateDatabase  = errors.New("duplicate database name")
	ErrDuplicateStore     = errors.New("duplicate store name")
	ErrUnknownDatabase    = errors.New("unknown database")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrFlagRequiresArg    = errors.New("flag requires an argument")
	ErrUnknownFlag        = errors.New("unknown flag")
)
