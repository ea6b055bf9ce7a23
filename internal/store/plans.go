// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

package store

import (
	"github.com/juju/errors"
	mgo "github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"
)

// Plan is a provisioning tier. Every plan maps to one Keystone
// tenant; resources provisioned under the plan are created in
// that tenant.
type Plan struct {
	Name        string `bson:"name"`
	Tenant      string `bson:"tenant"`
	Description string `bson:"description"`
}

// AddPlan stores a new plan. Plan management is an administrative
// operation; the provisioning paths only ever read plans.
func (st *Store) AddPlan(p Plan) error {
	if p.Name == "" {
		return errors.NotValidf("plan with empty name")
	}
	err := st.run(plansC, func(c *mgo.Collection) error {
		return c.Insert(p)
	})
	return errors.Annotatef(err, "adding plan %q", p.Name)
}

// Plan returns the plan with the given name.
func (st *Store) Plan(name string) (*Plan, error) {
	var doc Plan
	err := st.run(plansC, func(c *mgo.Collection) error {
		return c.Find(bson.M{"name": name}).One(&doc)
	})
	if err == mgo.ErrNotFound {
		return nil, errors.NotFoundf("plan %q", name)
	} else if err != nil {
		return nil, errors.Annotatef(err, "getting plan %q", name)
	}
	return &doc, nil
}

// Plans returns all plans sorted by name.
func (st *Store) Plans() ([]Plan, error) {
	var docs []Plan
	err := st.run(plansC, func(c *mgo.Collection) error {
		return c.Find(nil).Sort("name").All(&docs)
	})
	if err != nil {
		return nil, errors.Annotate(err, "listing plans")
	}
	return docs, nil
}

// RemovePlan deletes the named plan. Unlike instances, plans hold
// no provisioned state, so the record really is removed.
func (st *Store) RemovePlan(name string) error {
	err := st.run(plansC, func(c *mgo.Collection) error {
		return c.Remove(bson.M{"name": name})
	})
	if err == mgo.ErrNotFound {
		return errors.NotFoundf("plan %q", name)
	}
	return errors.Annotatef(err, "removing plan %q", name)
}
