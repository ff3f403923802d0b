// Package config loads heykeploy's layered configuration.
//
// Values are resolved in this order, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A config file in the config directory: config.lua, config.yaml,
//     config.yml or config.toml (first match wins)
//  3. A .env file in the config directory
//  4. HEYKEPLOY_* environment variables
//
// CLI flags are applied on top by cmd/heykeploy.
//
// # Lua configs
//
// Lua configs run in a sandboxed gopher-lua VM with os, io, require and the
// other escape hatches removed. A read-only "platform" table is injected so
// configs can branch on the host:
//
//	heykeploy = {
//	    install_dir = "/opt/keploy/bin",
//	    release = {
//	        url = "https://example.com/keploy_" .. platform.asset_suffix .. ".tar.gz",
//	        checksum_url = "https://example.com/checksums.txt",
//	    },
//	    container = { runtime = platform.when(platform.is_linux, "podman") },
//	    record = { extra_args = { "--delay", "10" } },
//	    log = { level = "debug" },
//	}
//
// # YAML and TOML
//
// YAML and TOML files use the same keys as the Lua table.
package config
