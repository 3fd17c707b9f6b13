// Package config provides configuration management for switchyard.
//
// Configuration is loaded from config.yaml in a single directory. The default
// directory is ~/.config/switchyard; commands accept --config-path to use
// another one. Values missing from the file keep their defaults (see
// GetDefaultConfig), and durations are written as Go duration strings:
//
//	server:
//	  httpAddr: 127.0.0.1:8095
//	  mcp:
//	    enabled: true
//	    transport: streamable-http
//	    addr: 127.0.0.1:8096
//	discovery:
//	  interval: 60s
//	  missThreshold: 3
//	  manifest:
//	    enabled: true
//	    dir: services.d
//	    watch: true
//	  container:
//	    enabled: true
//	    namePrefix: tools-
//	  static:
//	    - name: weather
//	      location: https://weather.example.com
//	      protocol: http
//	health:
//	  interval: 30s
//	  timeout: 5s
//	  failureThreshold: 3
//	router:
//	  callTimeout: 10s
//	storage:
//	  sqlitePath: registry.db
//	logging:
//	  level: info
//	  format: text
//
// Relative manifest and storage paths are resolved against the configuration
// directory.
package config
