// Package config handles configuration loading for strand-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${STRAND_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	locator:
//	  timeout: "2s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and client websocket connections
//
// Database:
//
//	database:
//	  path: "/var/lib/strand/gateway.db"
//
// Fleet locator:
//
//	locator:
//	  timeout: "2s"                     # bounded wait for locate replies
//	  control_channel: "strand:locate"  # backplane channel for locate requests
//
// Session:
//
//	session:
//	  workspace_root: "/var/lib/strand/workspaces"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/strand/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
