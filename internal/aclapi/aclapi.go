// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// Package aclapi is a client for the network ACL service used to
// open TCP reachability between application units and the storage
// backends. Rules are staged on the client and flushed by Commit.
package aclapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/httprequest.v1"
)

var logger = loggo.GetLogger("swiftbroker.aclapi")

const requestTimeout = 30 * time.Second

// Rule is one TCP permit entry.
type Rule struct {
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Action      string    `json:"action"`
	Protocol    string    `json:"protocol"`
	L4          L4Options `json:"l4-options"`
}

// L4Options matches a destination port.
type L4Options struct {
	DestPortOp    string `json:"dest-port-op"`
	DestPortStart string `json:"dest-port-start"`
}

// Client is a handle on the ACL service. It holds no staging state
// of its own and is safe for concurrent use; rules are staged on
// per-request batches.
type Client struct {
	url    string
	client *httprequest.Client
}

// New returns a client for the ACL service at url, authenticating
// every request with the given credentials.
func New(url, username, password string) *Client {
	return &Client{
		url: strings.TrimRight(url, "/"),
		client: &httprequest.Client{
			Doer: &basicAuthDoer{
				username: username,
				password: password,
				client:   &http.Client{Timeout: requestTimeout},
			},
		},
	}
}

// Batch stages ACL rules for one submission. A Batch is not safe
// for concurrent use; callers stage and commit their own.
type Batch struct {
	client *Client
	staged []Rule
}

// NewBatch returns an empty staging batch over the client's
// transport.
func (c *Client) NewBatch() *Batch {
	return &Batch{client: c}
}

// AddTCPPermitAccess stages a rule permitting TCP traffic from the
// source CIDR to the destination CIDR on the given port.
func (b *Batch) AddTCPPermitAccess(desc, source, dest, port string) {
	b.staged = append(b.staged, Rule{
		Description: desc,
		Source:      source,
		Destination: dest,
		Action:      "permit",
		Protocol:    "tcp",
		L4: L4Options{
			DestPortOp:    "eq",
			DestPortStart: port,
		},
	})
}

type aclRequest struct {
	httprequest.Route `httprequest:"PUT /api/ipv4/acl/:ip/:mask"`
	IP                string  `httprequest:"ip,path"`
	Mask              string  `httprequest:"mask,path"`
	Body              aclBody `httprequest:",body"`
}

type aclBody struct {
	Kind  string `json:"kind"`
	Rules []Rule `json:"rules"`
}

// Commit submits all staged rules, one request per source network,
// and clears the stage. Already-submitted rules are not rolled back
// when a later request fails.
func (b *Batch) Commit() error {
	bySource := make(map[string][]Rule)
	var order []string
	for _, rule := range b.staged {
		if _, ok := bySource[rule.Source]; !ok {
			order = append(order, rule.Source)
		}
		bySource[rule.Source] = append(bySource[rule.Source], rule)
	}
	b.staged = nil

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	for _, source := range order {
		ip, mask, ok := strings.Cut(source, "/")
		if !ok {
			return errors.NotValidf("source network %q", source)
		}
		req := &aclRequest{
			IP:   ip,
			Mask: mask,
			Body: aclBody{
				Kind:  "default#acl",
				Rules: bySource[source],
			},
		}
		if err := b.client.client.CallURL(ctx, b.client.url, req, nil); err != nil {
			return errors.Annotatef(err, "submitting ACL rules for %q", source)
		}
		logger.Debugf("submitted %d ACL rule(s) for %s", len(bySource[source]), source)
	}
	return nil
}

// basicAuthDoer decorates every request with basic auth.
type basicAuthDoer struct {
	username string
	password string
	client   *http.Client
}

func (d *basicAuthDoer) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(d.username, d.password)
	return d.client.Do(req)
}
