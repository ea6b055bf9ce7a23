// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// Package store persists the broker's plan and instance metadata
// in MongoDB.
package store

import (
	"time"

	"github.com/juju/errors"
	mgo "github.com/juju/mgo/v3"
)

const (
	plansC     = "plans"
	instancesC = "instances"

	dialTimeout = 10 * time.Second
)

// Store is a handle on the broker's metadata database. It is safe
// for concurrent use; every operation runs on its own session copy.
type Store struct {
	session  *mgo.Session
	database string
}

// Dial connects to the MongoDB endpoint and returns a Store using
// the named database.
func Dial(endpoint, database string) (*Store, error) {
	session, err := mgo.DialWithTimeout(endpoint, dialTimeout)
	if err != nil {
		return nil, errors.Annotatef(err, "dialling mongodb at %q", endpoint)
	}
	return &Store{session: session, database: database}, nil
}

// NewStore wraps an existing session. The caller retains ownership
// of the session.
func NewStore(session *mgo.Session, database string) *Store {
	return &Store{session: session, database: database}
}

// Close releases the underlying session.
func (st *Store) Close() {
	st.session.Close()
}

// run invokes fn with a collection bound to a fresh session copy.
func (st *Store) run(collection string, fn func(*mgo.Collection) error) error {
	session := st.session.Copy()
	defer session.Close()
	return fn(session.DB(st.database).C(collection))
}
