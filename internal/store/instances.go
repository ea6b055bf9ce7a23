// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

package store

import (
	"github.com/juju/errors"
	mgo "github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"
)

// Instance records one provisioned service instance. The container,
// user and password are assigned at creation time and never change.
type Instance struct {
	Name      string `bson:"name"`
	Team      string `bson:"team"`
	Container string `bson:"container"`
	Plan      string `bson:"plan"`
	User      string `bson:"user"`
	Password  string `bson:"password"`
	Deleted   bool   `bson:"deleted"`
}

// AddInstance stores a newly provisioned instance.
func (st *Store) AddInstance(inst Instance) error {
	err := st.run(instancesC, func(c *mgo.Collection) error {
		return c.Insert(inst)
	})
	return errors.Annotatef(err, "adding instance %q", inst.Name)
}

// Instance returns the instance with the given name. Soft-deleted
// instances are still returned so that existing binds remain
// resolvable.
func (st *Store) Instance(name string) (*Instance, error) {
	var doc Instance
	err := st.run(instancesC, func(c *mgo.Collection) error {
		return c.Find(bson.M{"name": name}).One(&doc)
	})
	if err == mgo.ErrNotFound {
		return nil, errors.NotFoundf("instance %q", name)
	} else if err != nil {
		return nil, errors.Annotatef(err, "getting instance %q", name)
	}
	return &doc, nil
}

// Instances returns all instances sorted by name.
func (st *Store) Instances() ([]Instance, error) {
	var docs []Instance
	err := st.run(instancesC, func(c *mgo.Collection) error {
		return c.Find(nil).Sort("name").All(&docs)
	})
	if err != nil {
		return nil, errors.Annotate(err, "listing instances")
	}
	return docs, nil
}

// InstancesByPlan returns the instances provisioned under the
// named plan, sorted by name.
func (st *Store) InstancesByPlan(plan string) ([]Instance, error) {
	var docs []Instance
	err := st.run(instancesC, func(c *mgo.Collection) error {
		return c.Find(bson.M{"plan": plan}).Sort("name").All(&docs)
	})
	if err != nil {
		return nil, errors.Annotatef(err, "listing instances for plan %q", plan)
	}
	return docs, nil
}

// RemoveInstance marks the named instance deleted. The record is
// retained for audit and undelete; removing an unknown instance
// is a no-op.
func (st *Store) RemoveInstance(name string) error {
	err := st.run(instancesC, func(c *mgo.Collection) error {
		return c.Update(bson.M{"name": name}, bson.M{"$set": bson.M{"deleted": true}})
	})
	if err == mgo.ErrNotFound {
		return nil
	}
	return errors.Annotatef(err, "removing instance %q", name)
}
