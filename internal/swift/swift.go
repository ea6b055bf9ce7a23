// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// Package swift manipulates containers in the broker's object
// storage account: creation, removal and container-level access
// metadata (ACLs and the CORS allowed-origin list).
package swift

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-goose/goose/v5/client"
	gooseerrors "github.com/go-goose/goose/v5/errors"
	goosehttp "github.com/go-goose/goose/v5/http"
	"github.com/go-goose/goose/v5/identity"
	"github.com/juju/errors"
)

// corsHeader is the container metadata header holding the
// space-separated list of allowed CORS origins.
const corsHeader = "X-Container-Meta-Access-Control-Allow-Origin"

// Config holds the storage account credentials.
type Config struct {
	// AuthURL is the storage auth endpoint. A path ending in
	// /auth/v1 (or v1.0) selects legacy swauth authentication.
	AuthURL string

	// Username and Key authenticate the storage account, e.g.
	// "account:user" / "secret" for legacy auth.
	Username string
	Key      string

	// Region restricts catalog lookups when set.
	Region string

	// Tenant scopes Keystone-style authentication; unused with
	// legacy auth.
	Tenant string
}

// caller is the slice of goose's authenticating client this package
// uses. Tests substitute a fake.
type caller interface {
	SendRequest(method, svcType, apiVersion string, apiCall string, requestData *goosehttp.RequestData) error
}

// Client performs container operations on one storage account.
type Client struct {
	api caller
}

// NewClient authenticates against the storage auth endpoint and
// returns a container client.
func NewClient(cfg Config) *Client {
	cred := identity.Credentials{
		URL:        cfg.AuthURL,
		User:       cfg.Username,
		Secrets:    cfg.Key,
		Region:     cfg.Region,
		TenantName: cfg.Tenant,
	}
	mode := identity.AuthUserPass
	if strings.Contains(cfg.AuthURL, "/auth/v1") {
		mode = identity.AuthLegacy
	}
	return &Client{api: client.NewClient(&cred, mode, nil)}
}

// CreateContainer creates a container carrying the given headers.
// Creating an existing container updates its headers.
func (c *Client) CreateContainer(name string, headers http.Header) error {
	req := goosehttp.RequestData{
		ReqHeaders:     headers,
		ExpectedStatus: []int{http.StatusCreated, http.StatusAccepted},
	}
	err := c.api.SendRequest(client.PUT, "object-store", "", name, &req)
	return errors.Annotatef(err, "creating container %q", name)
}

// RemoveContainer deletes an empty container.
func (c *Client) RemoveContainer(name string) error {
	req := goosehttp.RequestData{
		ExpectedStatus: []int{http.StatusNoContent},
	}
	err := c.api.SendRequest(client.DELETE, "object-store", "", name, &req)
	if gooseerrors.IsNotFound(err) {
		return errors.NotFoundf("container %q", name)
	}
	return errors.Annotatef(err, "removing container %q", name)
}

// AccountContainers lists the containers in the storage account.
func (c *Client) AccountContainers() ([]ContainerInfo, error) {
	var containers []ContainerInfo
	req := goosehttp.RequestData{
		Params:         &url.Values{"format": []string{"json"}},
		RespValue:      &containers,
		ExpectedStatus: []int{http.StatusOK},
	}
	if err := c.api.SendRequest(client.GET, "object-store", "", "", &req); err != nil {
		return nil, errors.Annotate(err, "listing account containers")
	}
	return containers, nil
}

// ContainerInfo describes one container in an account listing.
type ContainerInfo struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
	Bytes int64  `json:"bytes"`
}

// CORS returns the container's current allowed-origin list, a
// space-separated string, possibly empty.
func (c *Client) CORS(container string) (string, error) {
	req := goosehttp.RequestData{
		ExpectedStatus: []int{http.StatusOK, http.StatusNoContent},
	}
	if err := c.api.SendRequest(client.HEAD, "object-store", "", container, &req); err != nil {
		return "", errors.Annotatef(err, "reading metadata of container %q", container)
	}
	return req.RespHeaders.Get(corsHeader), nil
}

// SetCORS adds origin to the container's allowed-origin list. The
// origin may itself be a space-joined set of tokens, as produced
// for app binds. Existing entries keep their order, missing tokens
// are appended at the end; when every token is already present no
// write occurs.
func (c *Client) SetCORS(container, origin string) error {
	current, err := c.CORS(container)
	if err != nil {
		return errors.Trace(err)
	}
	tokens := strings.Fields(current)
	present := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		present[token] = true
	}
	added := false
	for _, token := range strings.Fields(origin) {
		if !present[token] {
			tokens = append(tokens, token)
			present[token] = true
			added = true
		}
	}
	if !added {
		return nil
	}
	return errors.Trace(c.postCORS(container, strings.Join(tokens, " ")))
}

// UnsetCORS removes origin's tokens from the container's
// allowed-origin list. Matching is on whole tokens only; the
// remaining entries preserve their order.
func (c *Client) UnsetCORS(container, origin string) error {
	current, err := c.CORS(container)
	if err != nil {
		return errors.Trace(err)
	}
	remove := make(map[string]bool)
	for _, token := range strings.Fields(origin) {
		remove[token] = true
	}
	var kept []string
	for _, token := range strings.Fields(current) {
		if !remove[token] {
			kept = append(kept, token)
		}
	}
	return errors.Trace(c.postCORS(container, strings.Join(kept, " ")))
}

func (c *Client) postCORS(container, value string) error {
	headers := make(http.Header)
	headers.Set(corsHeader, value)
	req := goosehttp.RequestData{
		ReqHeaders:     headers,
		ExpectedStatus: []int{http.StatusNoContent, http.StatusAccepted},
	}
	err := c.api.SendRequest(client.POST, "object-store", "", container, &req)
	return errors.Annotatef(err, "updating CORS of container %q", container)
}
