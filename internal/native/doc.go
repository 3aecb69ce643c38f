// Package native provides implementations of the engine lifecycle surface.
//
// The production engine is an external native library and is not part of
// this module. Two stand-ins satisfy control.Engine:
//   - Simulator: dials the control socket, writes a config message and then
//     periodic keep-alives, and walks shutting-down to disabled on Stop
//   - Disabled: reports disabled for every call
package native
