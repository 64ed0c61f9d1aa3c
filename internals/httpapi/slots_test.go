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

package httpapi_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	. "gopkg.in/check.v1"

	"github.com/canonical/bootctl/internals/bootrecord"
)

func slotA(current bool) map[string]interface{} {
	return map[string]interface{}{
		"slot":            0.0,
		"suffix":          "_a",
		"priority":        15.0,
		"tries-remaining": 7.0,
		"successful-boot": true,
		"bootable":        true,
		"current":         current,
	}
}

func (s *APISuite) TestGetSlotsUninitialized(c *C) {
	status, response := serve(c, s.api, "GET", "/v1/slots", nil)

	c.Assert(status, Equals, 200)
	c.Assert(response, DeepEquals, map[string]interface{}{
		"current": nil,
		"slots": []interface{}{
			slotA(false),
			map[string]interface{}{
				"slot":            1.0,
				"suffix":          "_b",
				"priority":        0.0,
				"tries-remaining": 0.0,
				"successful-boot": false,
				"bootable":        false,
				"current":         false,
			},
		},
	})
}

func (s *APISuite) TestGetSlots(c *C) {
	c.Assert(s.ctrl.Init("_a"), IsNil)
	status, response := serve(c, s.api, "GET", "/v1/slots", nil)

	c.Assert(status, Equals, 200)
	c.Check(response["current"], Equals, 0.0)
	slots := response["slots"].([]interface{})
	c.Check(slots, HasLen, 2)
	c.Check(slots[0], DeepEquals, slotA(true))
}

func (s *APISuite) TestGetSlotsInvalidRecord(c *C) {
	s.writeRecord(c, make([]byte, bootrecord.RecordSize))
	status, response := serve(c, s.api, "GET", "/v1/slots", nil)

	c.Assert(status, Equals, 422)
	c.Check(response["error"], Matches, `cannot read slots: cannot load record from .*: invalid boot control record: bad magic .*`)
}

func (s *APISuite) TestGetSlotsMissingDevice(c *C) {
	c.Assert(os.Remove(s.path), IsNil)
	status, response := serve(c, s.api, "GET", "/v1/slots", nil)

	c.Assert(status, Equals, 500)
	c.Check(response["error"], Matches, `cannot read slots: cannot open .*`)
}

func (s *APISuite) TestGetSlot(c *C) {
	for _, name := range []string{"0", "_a", "a"} {
		status, response := serve(c, s.api, "GET", "/v1/slots/"+name, nil)
		c.Assert(status, Equals, 200)
		c.Check(response, DeepEquals, slotA(false))
	}
}

func (s *APISuite) TestGetSlotInvalid(c *C) {
	status, response := serve(c, s.api, "GET", "/v1/slots/_c", nil)
	c.Assert(status, Equals, 400)
	c.Check(response, DeepEquals, map[string]interface{}{
		"error": `invalid slot "_c": must be an index or one of _a, _b`,
	})

	status, _ = serve(c, s.api, "GET", "/v1/slots/2", nil)
	c.Check(status, Equals, 400)
}

func (s *APISuite) TestActivateSlot(c *C) {
	c.Assert(s.ctrl.Init("_a"), IsNil)
	body := strings.NewReader(`{"action": "activate"}`)
	status, response := serve(c, s.api, "POST", "/v1/slots/_b", body)

	c.Assert(status, Equals, 200)
	c.Check(response, DeepEquals, map[string]interface{}{
		"slot":            1.0,
		"suffix":          "_b",
		"priority":        15.0,
		"tries-remaining": 7.0,
		"successful-boot": false,
		"bootable":        true,
		"current":         false,
	})

	r, err := s.store.Read()
	c.Assert(err, IsNil)
	c.Check(r.Slots[0].Priority, Equals, uint8(14))
}

func (s *APISuite) TestUnbootableSlot(c *C) {
	c.Assert(s.ctrl.Init("_b"), IsNil)
	body := strings.NewReader(`{"action": "unbootable"}`)
	status, response := serve(c, s.api, "POST", "/v1/slots/0", body)

	c.Assert(status, Equals, 200)
	c.Check(response["priority"], Equals, 0.0)
	c.Check(response["bootable"], Equals, false)
}

func (s *APISuite) TestSlotActionNotInitialized(c *C) {
	body := strings.NewReader(`{"action": "activate"}`)
	status, response := serve(c, s.api, "POST", "/v1/slots/1", body)

	c.Assert(status, Equals, 409)
	c.Check(response, DeepEquals, map[string]interface{}{
		"error": "boot control not initialized",
	})
}

func (s *APISuite) TestSlotActionInvalid(c *C) {
	c.Assert(s.ctrl.Init("_a"), IsNil)
	status, response := serve(c, s.api, "POST", "/v1/slots/1", strings.NewReader(`{"action": "boot"}`))
	c.Assert(status, Equals, 400)
	c.Check(response, DeepEquals, map[string]interface{}{
		"error": `action must be "activate" or "unbootable"`,
	})

	status, response = serve(c, s.api, "POST", "/v1/slots/1", strings.NewReader(`{`))
	c.Assert(status, Equals, 400)
	c.Check(response["error"], Matches, `cannot decode request body: .*`)
}

func (s *APISuite) TestBootSuccessful(c *C) {
	c.Assert(s.ctrl.Init("_b"), IsNil)
	status, response := serve(c, s.api, "POST", "/v1/boot-successful", nil)

	c.Assert(status, Equals, 200)
	c.Check(response["slot"], Equals, 1.0)
	c.Check(response["successful-boot"], Equals, true)
	c.Check(response["current"], Equals, true)
}

func (s *APISuite) TestBootSuccessfulNotInitialized(c *C) {
	status, response := serve(c, s.api, "POST", "/v1/boot-successful", nil)
	c.Assert(status, Equals, 409)
	c.Check(response["error"], Equals, "boot control not initialized")
}

func (s *APISuite) TestMetrics(c *C) {
	c.Assert(s.ctrl.Init("_a"), IsNil)
	serve(c, s.api, "POST", "/v1/slots/_b", strings.NewReader(`{"action": "activate"}`))
	serve(c, s.api, "POST", "/v1/boot-successful", nil)

	recorder := httptest.NewRecorder()
	request, err := http.NewRequest("GET", "/v1/metrics", nil)
	c.Assert(err, IsNil)
	s.api.ServeHTTP(recorder, request)
	c.Assert(recorder.Code, Equals, 200)
	body, err := io.ReadAll(recorder.Body)
	c.Assert(err, IsNil)

	out := string(body)
	c.Check(out, Matches, `(?s).*\nbootctl_operations_total\{operation="set-active",result="success"\} 1\n.*`)
	c.Check(out, Matches, `(?s).*\nbootctl_operations_total\{operation="mark-successful",result="success"\} 1\n.*`)
	c.Check(out, Matches, `(?s).*\nbootctl_slot_priority\{slot="1",suffix="_b"\} 15\n.*`)
	c.Check(out, Matches, `(?s).*\nbootctl_slot_current\{slot="0",suffix="_a"\} 1\n.*`)
}
