// Package config loads and watches the gateway configuration.
//
// Configuration is read from a YAML file with ${VAR} and ${VAR:-default}
// substitution, then a small set of environment variables (PORT,
// JWT_SECRET, USERS_SERVICE_URL, ORDERS_SERVICE_URL, LOG_LEVEL) override
// the file. Missing sections fall back to DefaultConfig.
//
// The Watcher reloads the file on change. Only the log level and the rate
// limit settings are applied live; everything else needs a restart.
package config
