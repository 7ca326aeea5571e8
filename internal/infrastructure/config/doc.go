// Package config handles loading and validation of Trakbridge configuration.
//
// Configuration is loaded from a YAML file with environment variable
// overrides, in this precedence order:
//  1. Hardcoded defaults
//  2. YAML file values
//  3. TRAKBRIDGE_* environment variables
//
// Secrets (broker and backend credentials) should be supplied through the
// environment rather than committed to the config file.
package config
