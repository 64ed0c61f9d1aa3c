// Copyright (c) 2021 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/canonical/bootctl/internals/bootctrl"
	"github.com/canonical/bootctl/internals/bootrecord"
	"github.com/canonical/bootctl/internals/logger"
)

type API struct {
	ctrl    Controller
	metrics Metrics
	router  *mux.Router
}

// Controller is the slot controller the API operates on. It is implemented
// by *bootctrl.Controller.
type Controller interface {
	CurrentSlot() (int, error)
	LookupSlot(name string) (int, error)
	Slots() ([]bootctrl.SlotInfo, error)
	MarkBootSuccessful() error
	SetActiveBootSlot(slot int) error
	SetSlotAsUnbootable(slot int) error
}

// Metrics records request outcomes and serves the exposition endpoint.
type Metrics interface {
	Observe(operation string, start time.Time, err error)
	Handler() http.Handler
}

func NewAPI(ctrl Controller, metrics Metrics) *API {
	s := &API{
		ctrl:    ctrl,
		metrics: metrics,
		router:  mux.NewRouter(),
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router.HandleFunc("/v1/slots", s.getSlots).Methods("GET")
	s.router.HandleFunc("/v1/slots/{slot}", s.getSlot).Methods("GET")
	s.router.HandleFunc("/v1/slots/{slot}", s.postSlot).Methods("POST")
	s.router.HandleFunc("/v1/boot-successful", s.postBootSuccessful).Methods("POST")
	if metrics != nil {
		s.router.Handle("/v1/metrics", metrics.Handler()).Methods("GET")
	}

	return s
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) observe(operation string, start time.Time, err error) {
	if a.metrics != nil {
		a.metrics.Observe(operation, start, err)
	}
}

// errorStatus maps controller and store errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, bootctrl.ErrInvalidSlot):
		return http.StatusBadRequest
	case errors.Is(err, bootctrl.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, bootrecord.ErrInvalidFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		logger.Noticef("Cannot marshal JSON: %v", err)
		http.Error(w, `{"error":"cannot marshal JSON"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, err = w.Write(b)
	if err != nil {
		// Very unlikely to happen, but log any error (not much more we can do)
		logger.Noticef("Cannot write JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, error string) {
	writeResponse(w, status, errorResponse{Error: error})
}

type errorResponse struct {
	Error string `json:"error"`
}
