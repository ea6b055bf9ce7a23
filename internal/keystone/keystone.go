// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// Package keystone talks to the Keystone v2 identity service. The
// broker authenticates its admin user scoped to a plan's tenant, so
// one Client is constructed per tenant.
package keystone

import (
	"fmt"
	"net/http"

	"github.com/go-goose/goose/v5/client"
	gooseerrors "github.com/go-goose/goose/v5/errors"
	goosehttp "github.com/go-goose/goose/v5/http"
	"github.com/go-goose/goose/v5/identity"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("swiftbroker.keystone")

// Config holds the identity service settings shared by every
// tenant-scoped client.
type Config struct {
	// URL is the Keystone endpoint, e.g. "https://auth.example.com:5000/v2.0".
	URL string

	// Username and Password identify the broker's admin user.
	Username string
	Password string

	// Region restricts catalog lookups when set.
	Region string

	// DefaultRole is the member role granted to created users.
	DefaultRole string

	// DefaultRoleAutoAttached records whether the identity service
	// attaches DefaultRole to new users by itself, making an
	// explicit grant redundant.
	DefaultRoleAutoAttached bool

	// SSLNoVerify disables TLS certificate validation, for
	// endpoints behind self-signed certificates.
	SSLNoVerify bool
}

// caller is the slice of goose's authenticating client this package
// uses. Tests substitute a fake.
type caller interface {
	Authenticate() error
	IsAuthenticated() bool
	SendRequest(method, svcType, apiVersion string, apiCall string, requestData *goosehttp.RequestData) error
}

// Client performs identity operations scoped to one tenant.
type Client struct {
	cfg    Config
	tenant string
	api    caller
}

// NewClient returns a client authenticating cfg's admin user scoped
// to the given tenant.
func NewClient(cfg Config, tenant string) *Client {
	cred := identity.Credentials{
		URL:        cfg.URL,
		User:       cfg.Username,
		Secrets:    cfg.Password,
		Region:     cfg.Region,
		TenantName: tenant,
		Version:    2,
	}
	var api client.AuthenticatingClient
	if cfg.SSLNoVerify {
		api = client.NewNonValidatingClient(&cred, identity.AuthUserPass, nil)
	} else {
		api = client.NewClient(&cred, identity.AuthUserPass, nil)
	}
	return &Client{cfg: cfg, tenant: tenant, api: api}
}

// Tenant is an identity project under which users and storage
// resources are created.
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// User is an identity principal.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Role is a named identity role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Endpoints are the three interface URLs of the tenant's
// object-store catalog entry.
type Endpoints struct {
	AdminURL    string `json:"adminURL"`
	PublicURL   string `json:"publicURL"`
	InternalURL string `json:"internalURL"`
}

func (c *Client) ensureAuthenticated() error {
	if c.api.IsAuthenticated() {
		return nil
	}
	if err := c.api.Authenticate(); err != nil {
		return errors.Annotatef(err, "authenticating to keystone for tenant %q", c.tenant)
	}
	return nil
}

// Tenant resolves a project by name.
func (c *Client) Tenant(name string) (*Tenant, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, errors.Trace(err)
	}
	var resp struct {
		Tenants []Tenant `json:"tenants"`
	}
	req := goosehttp.RequestData{
		RespValue:      &resp,
		ExpectedStatus: []int{http.StatusOK},
	}
	if err := c.api.SendRequest(client.GET, "identity", "", "tenants", &req); err != nil {
		return nil, errors.Annotate(err, "listing tenants")
	}
	for _, t := range resp.Tenants {
		if t.Name == name {
			tenant := t
			return &tenant, nil
		}
	}
	return nil, errors.NotFoundf("project %q", name)
}

// Role resolves a role by name.
func (c *Client) Role(name string) (*Role, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, errors.Trace(err)
	}
	var resp struct {
		Roles []Role `json:"roles"`
	}
	req := goosehttp.RequestData{
		RespValue:      &resp,
		ExpectedStatus: []int{http.StatusOK},
	}
	if err := c.api.SendRequest(client.GET, "identity", "", "OS-KSADM/roles", &req); err != nil {
		return nil, errors.Annotate(err, "listing roles")
	}
	for _, r := range resp.Roles {
		if r.Name == name {
			role := r
			return &role, nil
		}
	}
	return nil, errors.NotFoundf("role %q", name)
}

// CreateUser creates a user under the named project, enabled or
// not, and grants roleName on the project. The grant is skipped
// when the identity service already attaches that role on user
// creation.
func (c *Client) CreateUser(name, password, projectName, roleName string, enabled bool) (*User, error) {
	tenant, err := c.Tenant(projectName)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var resp struct {
		User User `json:"user"`
	}
	req := goosehttp.RequestData{
		ReqValue: map[string]interface{}{
			"user": map[string]interface{}{
				"name":     name,
				"password": password,
				"tenantId": tenant.ID,
				"enabled":  enabled,
			},
		},
		RespValue:      &resp,
		ExpectedStatus: []int{http.StatusOK, http.StatusCreated},
	}
	if err := c.api.SendRequest(client.POST, "identity", "", "users", &req); err != nil {
		if gooseerrors.IsDuplicateValue(err) {
			return nil, errors.AlreadyExistsf("user %q", name)
		}
		return nil, errors.Annotatef(err, "creating user %q", name)
	}
	user := resp.User

	if roleName != "" && !(c.cfg.DefaultRoleAutoAttached && roleName == c.cfg.DefaultRole) {
		if err := c.grantRole(tenant.ID, user.ID, roleName); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return &user, nil
}

func (c *Client) grantRole(tenantID, userID, roleName string) error {
	role, err := c.Role(roleName)
	if err != nil {
		return errors.Trace(err)
	}
	req := goosehttp.RequestData{
		ExpectedStatus: []int{http.StatusOK, http.StatusCreated},
	}
	call := fmt.Sprintf("tenants/%s/users/%s/roles/OS-KSADM/%s", tenantID, userID, role.ID)
	if err := c.api.SendRequest(client.PUT, "identity", "", call, &req); err != nil {
		return errors.Annotatef(err, "granting role %q to user %q", roleName, userID)
	}
	logger.Debugf("granted role %q to user %q on tenant %q", roleName, userID, tenantID)
	return nil
}

// StorageEndpoints returns the object-store entry of the tenant's
// service catalog.
func (c *Client) StorageEndpoints() (*Endpoints, error) {
	if err := c.ensureAuthenticated(); err != nil {
		return nil, errors.Trace(err)
	}
	var resp struct {
		Access struct {
			ServiceCatalog []struct {
				Type      string      `json:"type"`
				Name      string      `json:"name"`
				Endpoints []Endpoints `json:"endpoints"`
			} `json:"serviceCatalog"`
		} `json:"access"`
	}
	req := goosehttp.RequestData{
		ReqValue: map[string]interface{}{
			"auth": map[string]interface{}{
				"passwordCredentials": map[string]interface{}{
					"username": c.cfg.Username,
					"password": c.cfg.Password,
				},
				"tenantName": c.tenant,
			},
		},
		RespValue:      &resp,
		ExpectedStatus: []int{http.StatusOK},
	}
	if err := c.api.SendRequest(client.POST, "identity", "", "tokens", &req); err != nil {
		return nil, errors.Annotate(err, "requesting service catalog")
	}
	for _, svc := range resp.Access.ServiceCatalog {
		if svc.Type != "object-store" || len(svc.Endpoints) == 0 {
			continue
		}
		ep := svc.Endpoints[0]
		return &ep, nil
	}
	return nil, errors.NotFoundf("object-store endpoints for tenant %q", c.tenant)
}
