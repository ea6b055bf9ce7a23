// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

// Package api exposes the broker over HTTP for the PaaS. Bodies are
// plain text unless noted; upstream failure detail is logged, never
// echoed to the caller.
package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/globocom/swiftbroker/internal/broker"
)

var logger = loggo.GetLogger("swiftbroker.api")

// Service is the slice of the orchestrator the HTTP layer consumes.
type Service interface {
	CreateInstance(name, team, plan string) error
	RemoveInstance(name string) error
	BindApp(instanceName, appHost string) (*broker.ConnectionInfo, error)
	BindUnit(instanceName, unitHost string) (*broker.ConnectionInfo, error)
	UnbindApp(instanceName, appHost string) error
	UnbindUnit(instanceName, unitHost string) error
	Plans() ([]broker.PlanInfo, error)
}

// Handlers routes broker operations.
type Handlers struct {
	service Service
}

// NewHandlers returns the HTTP handlers over the given service.
func NewHandlers(service Service) *Handlers {
	return &Handlers{service: service}
}

// Router returns the broker's route table.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/resources/plans", h.listPlans).Methods("GET")
	r.HandleFunc("/resources", h.createInstance).Methods("POST")
	r.HandleFunc("/resources/{name}", h.removeInstance).Methods("DELETE")
	r.HandleFunc("/resources/{name}/bind-app", h.bindApp).Methods("POST")
	r.HandleFunc("/resources/{name}/bind-app", h.unbindApp).Methods("DELETE")
	r.HandleFunc("/resources/{name}/bind", h.bindUnit).Methods("POST")
	r.HandleFunc("/resources/{name}/bind", h.unbindUnit).Methods("DELETE")
	r.HandleFunc("/healthcheck", h.healthcheck).Methods("GET")
	return r
}

// formValue normalizes a form field to a single string: a field
// posted as a list takes its first element. ParseForm only reads
// the body on POST, PUT and PATCH, while unbind requests carry
// their fields in a DELETE body, so that body is parsed here.
func formValue(r *http.Request, key string) string {
	if err := r.ParseForm(); err != nil {
		logger.Warningf("parsing request form: %v", err)
		return ""
	}
	if len(r.PostForm) == 0 && r.Body != nil {
		ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if ct == "application/x-www-form-urlencoded" {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Warningf("reading request body: %v", err)
				return ""
			}
			form, err := url.ParseQuery(string(body))
			if err != nil {
				logger.Warningf("parsing request body: %v", err)
				return ""
			}
			r.PostForm = form
		}
	}
	values := r.PostForm[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// internalError logs the failure naming the operation and answers
// with an opaque 500.
func internalError(w http.ResponseWriter, operation string, err error) {
	logger.Errorf("%s: %v", operation, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handlers) createInstance(w http.ResponseWriter, r *http.Request) {
	name := formValue(r, "name")
	team := formValue(r, "team")
	plan := formValue(r, "plan")
	if err := h.service.CreateInstance(name, team, plan); err != nil {
		// Invalid input answers 500 rather than 400; the PaaS
		// relies on this status.
		internalError(w, "create instance", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) removeInstance(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.service.RemoveInstance(name); err != nil {
		internalError(w, "remove instance", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) bindApp(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	appHost := formValue(r, "app-host")
	info, err := h.service.BindApp(name, appHost)
	if err != nil {
		// Unknown instances answer 500 here; only unbind uses 404.
		internalError(w, "bind app", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handlers) unbindApp(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	appHost := formValue(r, "app-host")
	if err := h.service.UnbindApp(name, appHost); err != nil {
		if errors.IsNotFound(err) {
			http.Error(w, "instance not found", http.StatusNotFound)
			return
		}
		internalError(w, "unbind app", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) bindUnit(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	unitHost := formValue(r, "unit-host")
	info, err := h.service.BindUnit(name, unitHost)
	if err != nil {
		internalError(w, "bind unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handlers) unbindUnit(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	unitHost := formValue(r, "unit-host")
	if err := h.service.UnbindUnit(name, unitHost); err != nil {
		internalError(w, "unbind unit", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.Plans()
	if err != nil {
		internalError(w, "list plans", err)
		return
	}
	if plans == nil {
		plans = []broker.PlanInfo{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *Handlers) healthcheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("WORKING"))
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logger.Errorf("encoding response: %v", err)
	}
}
