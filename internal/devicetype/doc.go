// Package devicetype resolves hardware capability profiles from device
// identifiers.
//
// HexaHaven devices embed their model family in the device ID prefix
// (e.g. "hexa5chn-a1b2c3"). The profile derived from that prefix drives
// everything downstream: how many channel slots the state cache
// allocates, which channels carry a speed regulator, and how regulator
// indices map into the device's reported regulator array.
//
// Resolution is deliberately forgiving: an unrecognised prefix falls
// back to a single-channel profile with no speed control rather than
// failing, so an unknown device still appears in the UI as a basic
// switch.
package devicetype
