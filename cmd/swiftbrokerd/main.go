// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// swiftbrokerd serves the Swift service broker HTTP API.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"

	"github.com/globocom/swiftbroker/internal/aclapi"
	"github.com/globocom/swiftbroker/internal/api"
	"github.com/globocom/swiftbroker/internal/broker"
	"github.com/globocom/swiftbroker/internal/config"
	"github.com/globocom/swiftbroker/internal/keystone"
	"github.com/globocom/swiftbroker/internal/store"
	"github.com/globocom/swiftbroker/internal/swift"
)

var logger = loggo.GetLogger("swiftbroker")

// mongoAttempt paces the initial store dial; mongo may still be
// coming up when the broker starts.
var mongoAttempt = utils.AttemptStrategy{
	Total: 30 * time.Second,
	Delay: 1 * time.Second,
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "swiftbrokerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return errors.Trace(err)
	}

	logging := "<root>=INFO"
	if cfg.LoggingConfig != "" {
		logging = cfg.LoggingConfig
	}
	if err := loggo.ConfigureLoggers(logging); err != nil {
		return errors.Annotate(err, "configuring logging")
	}

	st, err := dialStore(cfg)
	if err != nil {
		return errors.Annotatef(err, "connecting to mongodb at %q", cfg.MongoEndpoint)
	}
	defer st.Close()

	identityCfg := keystone.Config{
		URL:         cfg.KeystoneURL,
		Username:    cfg.KeystoneUser,
		Password:    cfg.KeystonePassword,
		DefaultRole: cfg.KeystoneDefaultRole,
		// Keystone v2 attaches the default member role on user
		// creation.
		DefaultRoleAutoAttached: true,
		SSLNoVerify:             cfg.KeystoneSSLNoVerify,
	}
	identityFor := func(tenant string) broker.Identity {
		return keystone.NewClient(identityCfg, tenant)
	}

	objects := swift.NewClient(swift.Config{
		AuthURL:  cfg.SwiftAuthURL,
		Username: cfg.SwiftUser,
		Key:      cfg.SwiftKey,
	})

	// The ACL client is built once here and injected, never created
	// lazily on the request path. Each unit bind stages rules on its
	// own batch.
	var aclFor func() broker.NetworkACL
	if cfg.EnableACLAPI {
		acl := aclapi.New(cfg.ACLAPIURL, cfg.ACLAPIUser, cfg.ACLAPIPass)
		aclFor = func() broker.NetworkACL { return acl.NewBatch() }
	}

	b := broker.New(broker.Config{
		AuthURL:      cfg.SwiftAuthURL,
		DefaultRole:  cfg.KeystoneDefaultRole,
		KeystoneHost: cfg.KeystoneHost,
		KeystonePort: cfg.KeystonePort,
		SwiftAPIHost: cfg.SwiftAPIHost,
		SwiftAPIPort: cfg.SwiftAPIPort,
	}, st, objects, aclFor, identityFor)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewHandlers(b).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	logger.Infof("swift broker listening on %s", server.Addr)
	return server.ListenAndServe()
}

func dialStore(cfg config.Config) (*store.Store, error) {
	var st *store.Store
	var err error
	for attempt := mongoAttempt.Start(); attempt.Next(); {
		st, err = store.Dial(cfg.MongoEndpoint, cfg.MongoDatabase)
		if err == nil {
			return st, nil
		}
		if attempt.HasNext() {
			logger.Warningf("mongodb not ready, retrying: %v", err)
		}
	}
	return nil, errors.Trace(err)
}
