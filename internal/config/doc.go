// Package config handles configuration loading for parley.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (by extension) with
// environment variable expansion. Values missing from the file keep the
// defaults from Default.
//
// # Configuration File
//
// Locations (in order):
//
//  1. --config flag
//  2. Path from PARLEY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/parley/parley.yaml
//  4. ~/.config/parley/parley.yaml
//
// # Environment Variable Expansion
//
//	database:
//	  driver: postgres
//	  dsn: "${PARLEY_DATABASE_DSN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Durations use Go's time.ParseDuration syntax:
//
//	sessions:
//	  write_timeout: "10s"
//	shutdown_timeout: "5s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"  # WebSocket, health and read-only API
//	  grpc_addr: "0.0.0.0:50051" # grpc.health.v1 only; omit to disable
//	  ws_path: "/ws"
//
//	tailscale:
//	  enabled: false
//	  hostname: "parley"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: ""              # default: $XDG_DATA_HOME/parley/tailscale
//	  ephemeral: false
//
//	database:
//	  driver: "sqlite"           # or "postgres"
//	  path: "/var/lib/parley/parley.db"  # default: $XDG_DATA_HOME/parley/parley.db
//	  dsn: ""
//
//	sessions:
//	  read_limit: 32768          # bytes per inbound frame
//	  write_timeout: "10s"
//	  allowed_origins: ["chat.example.com"]
//
//	logging:
//	  level: "info"              # debug, info, warn, error
//	  format: "text"             # text or json
package config
