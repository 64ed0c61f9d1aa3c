// Copyright (c) 2023 Canonical Ltd
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
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/canonical/bootctl/internals/bootctrl"
)

type slotsResponse struct {
	Current *int                `json:"current"`
	Slots   []bootctrl.SlotInfo `json:"slots"`
}

func (a *API) getSlots(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	slots, err := a.ctrl.Slots()
	a.observe("slots", start, err)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	resp := slotsResponse{Slots: slots}
	current, err := a.ctrl.CurrentSlot()
	switch {
	case err == nil:
		resp.Current = &current
	case errors.Is(err, bootctrl.ErrNotInitialized):
	default:
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeResponse(w, http.StatusOK, resp)
}

func (a *API) getSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := a.ctrl.LookupSlot(mux.Vars(r)["slot"])
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	a.writeSlot(w, slot)
}

type slotAction struct {
	Action string `json:"action"`
}

func (a *API) postSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := a.ctrl.LookupSlot(mux.Vars(r)["slot"])
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	var payload slotAction
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cannot decode request body: %v", err))
		return
	}

	start := time.Now()
	var operation string
	switch payload.Action {
	case "activate":
		operation = "set-active"
		err = a.ctrl.SetActiveBootSlot(slot)
	case "unbootable":
		operation = "set-unbootable"
		err = a.ctrl.SetSlotAsUnbootable(slot)
	default:
		writeError(w, http.StatusBadRequest, `action must be "activate" or "unbootable"`)
		return
	}
	a.observe(operation, start, err)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	a.writeSlot(w, slot)
}

func (a *API) postBootSuccessful(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := a.ctrl.MarkBootSuccessful()
	a.observe("mark-successful", start, err)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	current, err := a.ctrl.CurrentSlot()
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	a.writeSlot(w, current)
}

func (a *API) writeSlot(w http.ResponseWriter, slot int) {
	slots, err := a.ctrl.Slots()
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if slot >= len(slots) {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("slot %d missing from slot table", slot))
		return
	}
	writeResponse(w, http.StatusOK, slots[slot])
}
