package config

// Lua schema field names and globals
const (
	luaGlobal          = "heykeploy"
	luaFieldInstallDir = "install_dir"
	luaFieldRelease    = "release"
	luaFieldContainer  = "container"
	luaFieldRecord     = "record"
	luaFieldLog        = "log"
	luaFieldBridge     = "bridge"
)

// Environment variables and file names
const (
	EnvPrefix       = "HEYKEPLOY_"
	EnvConfigDir    = "HEYKEPLOY_CONFIG_DIR"
	EnvDataDir      = "HEYKEPLOY_DATA_DIR"
	DotEnvFile      = ".env"
	appName         = "heykeploy"
	DefaultImage    = "ghcr.io/keploy/keploy"
	DefaultRuntime  = "docker"
	DefaultListen   = "127.0.0.1:7781"
	DefaultTimeout  = "5m"
	DefaultGrace    = "5s"
	DefaultLogLevel = "info"
)

// configFileNames are probed in order inside the config directory.
var configFileNames = []string{"config.lua", "config.yaml", "config.yml", "config.toml"}
