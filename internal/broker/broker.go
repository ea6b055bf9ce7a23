// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// Package broker implements the provisioning orchestrator: the
// instance lifecycle operations that coordinate the metadata store,
// the identity service, object storage and the network ACL service.
package broker

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/globocom/swiftbroker/internal/keystone"
	"github.com/globocom/swiftbroker/internal/store"
)

var logger = loggo.GetLogger("swiftbroker.broker")

// trashPrefix names the companion container backing the storage
// system's undelete support.
const trashPrefix = ".trash-"

// MetadataStore persists plans and instances.
type MetadataStore interface {
	Plan(name string) (*store.Plan, error)
	Plans() ([]store.Plan, error)
	AddInstance(store.Instance) error
	Instance(name string) (*store.Instance, error)
	RemoveInstance(name string) error
}

// Identity creates principals and resolves storage endpoints for
// one tenant.
type Identity interface {
	CreateUser(name, password, projectName, roleName string, enabled bool) (*keystone.User, error)
	StorageEndpoints() (*keystone.Endpoints, error)
}

// ObjectStore manages containers and their access metadata.
type ObjectStore interface {
	CreateContainer(name string, headers http.Header) error
	SetCORS(container, origin string) error
	UnsetCORS(container, origin string) error
}

// NetworkACL stages network reachability rules and commits them.
// Each unit bind works on its own batch, so implementations need
// not be safe for concurrent use.
type NetworkACL interface {
	AddTCPPermitAccess(desc, source, dest, port string)
	Commit() error
}

// Config carries the settings the orchestrator needs beyond its
// collaborators.
type Config struct {
	// AuthURL is the storage auth endpoint handed to bound
	// applications.
	AuthURL string

	// DefaultRole is granted to every principal the broker creates.
	DefaultRole string

	// Keystone and Swift API locations, used when opening network
	// ACLs for unit binds.
	KeystoneHost string
	KeystonePort string
	SwiftAPIHost string
	SwiftAPIPort string
}

// Broker coordinates the backends implementing the instance
// lifecycle. It holds no per-request state.
type Broker struct {
	cfg         Config
	store       MetadataStore
	objects     ObjectStore
	aclFor      func() NetworkACL
	identityFor func(tenant string) Identity
}

// New returns a broker over the given collaborators. aclFor may be
// nil when network ACL integration is disabled; otherwise it yields
// a fresh rule batch per unit bind. identityFor yields an identity
// client scoped to a plan's tenant.
func New(cfg Config, st MetadataStore, objects ObjectStore, aclFor func() NetworkACL, identityFor func(tenant string) Identity) *Broker {
	return &Broker{
		cfg:         cfg,
		store:       st,
		objects:     objects,
		aclFor:      aclFor,
		identityFor: identityFor,
	}
}

// ConnectionInfo is the payload handed to a bound application or
// unit. The key names are the environment variables injected into
// the application.
type ConnectionInfo struct {
	AdminURL    string `json:"SWIFT_ADMIN_URL"`
	PublicURL   string `json:"SWIFT_PUBLIC_URL"`
	InternalURL string `json:"SWIFT_INTERNAL_URL"`
	AuthURL     string `json:"SWIFT_AUTH_URL"`
	Container   string `json:"SWIFT_CONTAINER"`
	Tenant      string `json:"SWIFT_TENANT"`
	User        string `json:"SWIFT_USER"`
	Password    string `json:"SWIFT_PASSWORD"`
}

// PlanInfo is one entry of the plan listing.
type PlanInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateInstance provisions a new instance under the named plan: a
// Keystone user, a container plus its trash companion, and the
// instance record. The operation is not idempotent; retrying after
// a partial failure can duplicate identity state.
func (b *Broker) CreateInstance(name, team, planName string) error {
	if planName == "" {
		return errors.NotValidf("instance without a plan")
	}
	if name == "" {
		return errors.NotValidf("instance with empty name")
	}
	if team == "" {
		return errors.NotValidf("instance with empty team")
	}
	plan, err := b.store.Plan(planName)
	if err != nil {
		return errors.Annotatef(err, "resolving plan %q", planName)
	}
	if plan.Tenant == "" {
		return errors.NotValidf("plan %q with no tenant", planName)
	}

	username := fmt.Sprintf("%s_%s", team, name)
	password, err := generatePassword()
	if err != nil {
		return errors.Trace(err)
	}
	container, err := generateContainerName()
	if err != nil {
		return errors.Trace(err)
	}

	identity := b.identityFor(plan.Tenant)
	if _, err := identity.CreateUser(username, password, plan.Tenant, b.cfg.DefaultRole, true); err != nil {
		return errors.Annotatef(err, "creating keystone user %q", username)
	}

	// TODO: a failure from here on leaves the keystone user (and
	// possibly the first container) behind; remove them instead of
	// leaving cleanup to the operator.
	headers := accessHeaders(plan.Tenant, username)
	if err := b.objects.CreateContainer(container, headers); err != nil {
		return errors.Annotatef(err, "creating container %q", container)
	}
	if err := b.objects.CreateContainer(trashPrefix+container, headers); err != nil {
		return errors.Annotatef(err, "creating container %q", trashPrefix+container)
	}

	err = b.store.AddInstance(store.Instance{
		Name:      name,
		Team:      team,
		Container: container,
		Plan:      planName,
		User:      username,
		Password:  password,
	})
	return errors.Annotatef(err, "recording instance %q", name)
}

// accessHeaders grants the tenant-scoped principal read and write
// on a container, plus public read.
func accessHeaders(tenant, username string) http.Header {
	headers := make(http.Header)
	headers.Set("X-Container-Write", fmt.Sprintf("%s:%s", tenant, username))
	headers.Set("X-Container-Read", fmt.Sprintf(".r:*,%s:%s", tenant, username))
	return headers
}

// RemoveInstance soft-deletes the named instance. The identity
// principal and the containers are kept for audit and undelete.
func (b *Broker) RemoveInstance(name string) error {
	return errors.Trace(b.store.RemoveInstance(name))
}

// resolve looks up an instance, its plan and the tenant's storage
// endpoints, and assembles the connection payload.
func (b *Broker) resolve(instanceName string) (*ConnectionInfo, *store.Instance, error) {
	inst, err := b.store.Instance(instanceName)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	plan, err := b.store.Plan(inst.Plan)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "resolving plan of instance %q", instanceName)
	}
	endpoints, err := b.identityFor(plan.Tenant).StorageEndpoints()
	if err != nil {
		return nil, nil, errors.Annotate(err, "resolving storage endpoints")
	}
	info := &ConnectionInfo{
		AdminURL:    joinURL(endpoints.AdminURL, inst.Container),
		PublicURL:   joinURL(endpoints.PublicURL, inst.Container),
		InternalURL: joinURL(endpoints.InternalURL, inst.Container),
		AuthURL:     b.cfg.AuthURL,
		Container:   inst.Container,
		Tenant:      plan.Tenant,
		User:        inst.User,
		Password:    inst.Password,
	}
	return info, inst, nil
}

// BindApp binds an application: its origins are added to the
// container's CORS allowed-origin list and the connection payload
// is returned.
func (b *Broker) BindApp(instanceName, appHost string) (*ConnectionInfo, error) {
	info, inst, err := b.resolve(instanceName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := b.objects.SetCORS(inst.Container, originPair(appHost)); err != nil {
		return nil, errors.Annotatef(err, "setting CORS for %q", appHost)
	}
	return info, nil
}

// BindUnit binds an execution unit: when ACL integration is
// enabled, the unit's /24 network is permitted to reach Keystone
// and the Swift API. ACL failures are logged and do not fail the
// bind.
func (b *Broker) BindUnit(instanceName, unitHost string) (*ConnectionInfo, error) {
	info, _, err := b.resolve(instanceName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b.aclFor != nil {
		b.permitBackendAccess(b.aclFor(), unitHost)
	}
	return info, nil
}

func (b *Broker) permitBackendAccess(acl NetworkACL, unitHost string) {
	source := formatForNetworkMask(unitHost) + "/24"
	for _, backend := range []struct {
		desc string
		host string
		port string
	}{
		{"keystone access (swift service) for unit " + unitHost, b.cfg.KeystoneHost, b.cfg.KeystonePort},
		{"swift api access (swift service) for unit " + unitHost, b.cfg.SwiftAPIHost, b.cfg.SwiftAPIPort},
	} {
		addr, err := resolveHost(backend.host)
		if err != nil {
			logger.Errorf("aclapi: resolving %q: %v", backend.host, err)
			continue
		}
		acl.AddTCPPermitAccess(backend.desc, source, addr+"/32", backend.port)
	}
	if err := acl.Commit(); err != nil {
		logger.Errorf("aclapi: committing access rules for unit %s: %v", unitHost, err)
	}
}

// UnbindApp removes the application's origins from the container's
// CORS allowed-origin list.
func (b *Broker) UnbindApp(instanceName, appHost string) error {
	_, inst, err := b.resolve(instanceName)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(b.objects.UnsetCORS(inst.Container, originPair(appHost)), "unsetting CORS for %q", appHost)
}

// UnbindUnit releases a unit bind. Network ACL rules are left in
// place; reclamation is an operator concern.
func (b *Broker) UnbindUnit(instanceName, unitHost string) error {
	return nil
}

// Plans lists the available plans sorted by name. An empty
// description defaults to the plan name.
func (b *Broker) Plans() ([]PlanInfo, error) {
	plans, err := b.store.Plans()
	if err != nil {
		return nil, errors.Trace(err)
	}
	infos := make([]PlanInfo, 0, len(plans))
	for _, plan := range plans {
		description := plan.Description
		if description == "" {
			description = plan.Name
		}
		infos = append(infos, PlanInfo{Name: plan.Name, Description: description})
	}
	return infos, nil
}

// originPair derives an application's CORS origins, http before
// https, space-joined.
func originPair(appHost string) string {
	return fmt.Sprintf("http://%s https://%s", appHost, appHost)
}

// joinURL concatenates an endpoint base with a container path.
func joinURL(base, container string) string {
	return strings.TrimRight(base, "/") + "/" + container
}

// formatForNetworkMask zeroes the last octet of an IPv4 address,
// yielding the base of its /24 network.
func formatForNetworkMask(ip string) string {
	octets := strings.Split(ip, ".")
	octets[len(octets)-1] = "0"
	return strings.Join(octets, ".")
}

// resolveHost returns the first address the host resolves to; IP
// literals pass through.
func resolveHost(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(addrs) == 0 {
		return "", errors.NotFoundf("addresses for host %q", host)
	}
	return addrs[0], nil
}
