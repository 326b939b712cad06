// Package config loads and validates the dm-relay YAML configuration.
//
// Configuration files support ${VAR_NAME} environment variable expansion
// and human-readable duration strings ("5s", "250ms"). Secrets like the
// JWT signing key are expected to arrive via the environment rather than
// being committed to the config file:
//
//	server:
//	  http_addr: ":10000"
//	storage:
//	  driver: sqlite
//	  path: /var/lib/dm-relay/relay.db
//	  append_timeout: 5s
//	auth:
//	  jwt_secret: ${DM_RELAY_JWT_SECRET}
//	logging:
//	  level: info
//	  format: text
package config
