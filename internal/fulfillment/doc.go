// Package fulfillment answers smart-home assistant intents for a user's
// devices.
//
// SYNC is served from the device store. QUERY and EXECUTE are forwarded to
// each device over the tunnel as small JSON documents:
//
//	{"intent":"query"}
//	{"intent":"execute","command":"action.devices.commands.OnOff","params":{"on":true}}
//
// and the device answers with
//
//	{"status":"success","state":{"on":true}}
//	{"status":"error","error":"hardwareFailure"}
//
// The tunnel itself treats both as opaque bytes; this package is the only
// place that parses them.
package fulfillment
