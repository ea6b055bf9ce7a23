// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

package keystone

import (
	"encoding/json"

	goosehttp "github.com/go-goose/goose/v5/http"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

type keystoneSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&keystoneSuite{})

// fakeCaller satisfies caller, replaying canned JSON bodies keyed
// by "METHOD apiCall".
type fakeCaller struct {
	testing.Stub
	responses map[string]string
}

func (f *fakeCaller) Authenticate() error {
	f.AddCall("Authenticate")
	return f.NextErr()
}

func (f *fakeCaller) IsAuthenticated() bool {
	return true
}

func (f *fakeCaller) SendRequest(method, svcType, apiVersion, apiCall string, req *goosehttp.RequestData) error {
	f.AddCall("SendRequest", method, svcType, apiCall)
	if err := f.NextErr(); err != nil {
		return err
	}
	if body, ok := f.responses[method+" "+apiCall]; ok && req.RespValue != nil {
		return json.Unmarshal([]byte(body), req.RespValue)
	}
	return nil
}

func newTestClient(cfg Config, tenant string, fake *fakeCaller) *Client {
	return &Client{cfg: cfg, tenant: tenant, api: fake}
}

const tenantsBody = `{"tenants": [
	{"id": "t1", "name": "infra", "enabled": true},
	{"id": "t2", "name": "apps", "enabled": true}
]}`

const rolesBody = `{"roles": [
	{"id": "r1", "name": "_member_"},
	{"id": "r2", "name": "swiftoperator"}
]}`

const userBody = `{"user": {"id": "u1", "name": "myteam_myinstance"}}`

func (s *keystoneSuite) TestTenant(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{"GET tenants": tenantsBody}}
	cli := newTestClient(Config{}, "infra", fake)

	tenant, err := cli.Tenant("apps")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(tenant.ID, gc.Equals, "t2")
}

func (s *keystoneSuite) TestTenantNotFound(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{"GET tenants": tenantsBody}}
	cli := newTestClient(Config{}, "infra", fake)

	_, err := cli.Tenant("nowhere")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
	c.Assert(err, gc.ErrorMatches, `project "nowhere" not found`)
}

func (s *keystoneSuite) TestCreateUserGrantsRole(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{
		"GET tenants":        tenantsBody,
		"GET OS-KSADM/roles": rolesBody,
		"POST users":         userBody,
	}}
	cfg := Config{DefaultRole: "_member_", DefaultRoleAutoAttached: false}
	cli := newTestClient(cfg, "infra", fake)

	user, err := cli.CreateUser("myteam_myinstance", "sekrit", "infra", "_member_", true)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(user.ID, gc.Equals, "u1")

	fake.CheckCalls(c, []testing.StubCall{
		{FuncName: "SendRequest", Args: []interface{}{"GET", "identity", "tenants"}},
		{FuncName: "SendRequest", Args: []interface{}{"POST", "identity", "users"}},
		{FuncName: "SendRequest", Args: []interface{}{"GET", "identity", "OS-KSADM/roles"}},
		{FuncName: "SendRequest", Args: []interface{}{"PUT", "identity", "tenants/t1/users/u1/roles/OS-KSADM/r1"}},
	})
}

func (s *keystoneSuite) TestCreateUserSkipsAutoAttachedDefaultRole(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{
		"GET tenants": tenantsBody,
		"POST users":  userBody,
	}}
	cfg := Config{DefaultRole: "_member_", DefaultRoleAutoAttached: true}
	cli := newTestClient(cfg, "infra", fake)

	_, err := cli.CreateUser("myteam_myinstance", "sekrit", "infra", "_member_", true)
	c.Assert(err, jc.ErrorIsNil)

	fake.CheckCalls(c, []testing.StubCall{
		{FuncName: "SendRequest", Args: []interface{}{"GET", "identity", "tenants"}},
		{FuncName: "SendRequest", Args: []interface{}{"POST", "identity", "users"}},
	})
}

func (s *keystoneSuite) TestCreateUserGrantsNonDefaultRoleEvenWhenAutoAttached(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{
		"GET tenants":        tenantsBody,
		"GET OS-KSADM/roles": rolesBody,
		"POST users":         userBody,
	}}
	cfg := Config{DefaultRole: "_member_", DefaultRoleAutoAttached: true}
	cli := newTestClient(cfg, "infra", fake)

	_, err := cli.CreateUser("myteam_myinstance", "sekrit", "infra", "swiftoperator", true)
	c.Assert(err, jc.ErrorIsNil)

	calls := fake.Calls()
	c.Assert(calls, gc.HasLen, 4)
	c.Check(calls[3].Args[2], gc.Equals, "tenants/t1/users/u1/roles/OS-KSADM/r2")
}

func (s *keystoneSuite) TestCreateUserUnknownProject(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{"GET tenants": tenantsBody}}
	cli := newTestClient(Config{}, "infra", fake)

	_, err := cli.CreateUser("u", "p", "nowhere", "_member_", true)
	c.Assert(err, jc.Satisfies, errors.IsNotFound)

	// No user must have been created.
	for _, call := range fake.Calls() {
		c.Check(call.Args[0], gc.Not(gc.Equals), "POST")
	}
}

func (s *keystoneSuite) TestStorageEndpoints(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{
		"POST tokens": `{"access": {"serviceCatalog": [
			{"type": "compute", "name": "nova", "endpoints": []},
			{"type": "object-store", "name": "swift", "endpoints": [
				{"adminURL": "http://admin:35357/v1/AUTH_t1",
				 "publicURL": "https://swift.example.com/v1/AUTH_t1",
				 "internalURL": "http://internal/v1/AUTH_t1"}
			]}
		]}}`,
	}}
	cli := newTestClient(Config{Username: "storm", Password: "storm"}, "infra", fake)

	eps, err := cli.StorageEndpoints()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(eps.AdminURL, gc.Equals, "http://admin:35357/v1/AUTH_t1")
	c.Check(eps.PublicURL, gc.Equals, "https://swift.example.com/v1/AUTH_t1")
	c.Check(eps.InternalURL, gc.Equals, "http://internal/v1/AUTH_t1")
}

func (s *keystoneSuite) TestStorageEndpointsMissingCatalogEntry(c *gc.C) {
	fake := &fakeCaller{responses: map[string]string{
		"POST tokens": `{"access": {"serviceCatalog": []}}`,
	}}
	cli := newTestClient(Config{}, "infra", fake)

	_, err := cli.StorageEndpoints()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}
