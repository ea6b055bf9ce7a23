// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads the broker configuration from the process
// environment. Every setting has a default suitable for a local
// development deployment.
package config

import (
	"os"

	"github.com/juju/errors"
)

// Environment variable names understood by the broker.
const (
	PortEnvKey          = "PORT"
	LoggingConfigEnvKey = "SWIFTBROKER_LOGGING_CONFIG"

	SwiftAuthURLEnvKey = "SWIFT_AUTH_URL"
	SwiftUserEnvKey    = "SWIFT_USER"
	SwiftKeyEnvKey     = "SWIFT_KEY"
	SwiftAPIHostEnvKey = "SWIFT_API_HOST"
	SwiftAPIPortEnvKey = "SWIFT_API_PORT"

	KeystoneURLEnvKey         = "KEYSTONE_URL"
	KeystoneUserEnvKey        = "KEYSTONE_USER"
	KeystonePasswordEnvKey    = "KEYSTONE_PASSWORD"
	KeystoneDefaultRoleEnvKey = "KEYSTONE_DEFAULT_ROLE"
	KeystoneHostEnvKey        = "KEYSTONE_HOST"
	KeystonePortEnvKey        = "KEYSTONE_PORT"
	KeystoneSSLNoVerifyEnvKey = "KEYSTONE_SSL_NO_VERIFY"

	MongoEndpointEnvKey = "MONGODB_ENDPOINT"
	MongoDatabaseEnvKey = "MONGODB_DATABASE"

	ACLAPIURLEnvKey  = "ACLAPI_URL"
	ACLAPIUserEnvKey = "ACLAPI_USER"
	ACLAPIPassEnvKey = "ACLAPI_PASS"
	EnableACLAPIKey  = "ENABLE_ACLAPI"
)

// Config holds everything the daemon needs to assemble its clients.
type Config struct {
	// Port is the TCP port the HTTP API listens on.
	Port string

	// LoggingConfig is a loggo configuration string, e.g.
	// "<root>=INFO;swiftbroker=DEBUG".
	LoggingConfig string

	// Swift storage account credentials. The auth URL may be a
	// legacy (v1) swauth endpoint or a Keystone endpoint.
	SwiftAuthURL string
	SwiftUser    string
	SwiftKey     string

	// Host and port of the Swift API, used when punching network
	// ACLs for unit binds.
	SwiftAPIHost string
	SwiftAPIPort string

	// Keystone admin credentials. The broker authenticates this
	// user scoped to each plan's tenant.
	KeystoneURL         string
	KeystoneUser        string
	KeystonePassword    string
	KeystoneDefaultRole string
	KeystoneHost        string
	KeystonePort        string
	KeystoneSSLNoVerify bool

	// Metadata store connection details.
	MongoEndpoint string
	MongoDatabase string

	// Network ACL service. Only consulted when EnableACLAPI is set.
	ACLAPIURL    string
	ACLAPIUser   string
	ACLAPIPass   string
	EnableACLAPI bool
}

// Load reads the broker configuration from the environment,
// applying defaults for anything unset.
func Load() Config {
	return Config{
		Port:          getenv(PortEnvKey, "8888"),
		LoggingConfig: os.Getenv(LoggingConfigEnvKey),

		SwiftAuthURL: getenv(SwiftAuthURLEnvKey, "http://127.0.0.1:8080/auth/v1"),
		SwiftUser:    getenv(SwiftUserEnvKey, "test:tester"),
		SwiftKey:     getenv(SwiftKeyEnvKey, "testing"),
		SwiftAPIHost: os.Getenv(SwiftAPIHostEnvKey),
		SwiftAPIPort: getenv(SwiftAPIPortEnvKey, "8080"),

		KeystoneURL:         getenv(KeystoneURLEnvKey, "http://127.0.0.1:5000/v2.0"),
		KeystoneUser:        getenv(KeystoneUserEnvKey, "storm"),
		KeystonePassword:    getenv(KeystonePasswordEnvKey, "storm"),
		KeystoneDefaultRole: getenv(KeystoneDefaultRoleEnvKey, "_member_"),
		KeystoneHost:        os.Getenv(KeystoneHostEnvKey),
		KeystonePort:        getenv(KeystonePortEnvKey, "5000"),
		KeystoneSSLNoVerify: getbool(KeystoneSSLNoVerifyEnvKey, true),

		MongoEndpoint: getenv(MongoEndpointEnvKey, "localhost:27017"),
		MongoDatabase: getenv(MongoDatabaseEnvKey, "swiftbroker"),

		ACLAPIURL:    os.Getenv(ACLAPIURLEnvKey),
		ACLAPIUser:   os.Getenv(ACLAPIUserEnvKey),
		ACLAPIPass:   os.Getenv(ACLAPIPassEnvKey),
		EnableACLAPI: getbool(EnableACLAPIKey, false),
	}
}

// Validate checks that the settings the broker cannot run without
// are present.
func (c Config) Validate() error {
	if c.KeystoneURL == "" {
		return errors.NotValidf("empty %s", KeystoneURLEnvKey)
	}
	if c.SwiftAuthURL == "" {
		return errors.NotValidf("empty %s", SwiftAuthURLEnvKey)
	}
	if c.MongoEndpoint == "" {
		return errors.NotValidf("empty %s", MongoEndpointEnvKey)
	}
	if c.EnableACLAPI && c.ACLAPIURL == "" {
		return errors.NotValidf("%s set with empty %s", EnableACLAPIKey, ACLAPIURLEnvKey)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "True", "TRUE":
		return true
	case "0", "false", "False", "FALSE":
		return false
	}
	return fallback
}
