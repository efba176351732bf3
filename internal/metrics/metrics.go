// Package metrics records heartbeat, transition, alert and spot-probe
// counters.
package metrics

// Collector receives observations from the keepalive, alert and spot
// components.
type Collector interface {
	// RecordHeartbeat counts one handled connection by result:
	// ok, protocol, auth or transport.
	RecordHeartbeat(result string)
	// RecordPing counts one client-side ping.
	RecordPing(ok bool)
	// RecordTransition counts one online/offline edge.
	RecordTransition(code string)
	// RecordAlert counts one delivery attempt to one integration.
	RecordAlert(integration, code string, ok bool)
	// RecordSpotProbe counts one metadata query by status.
	RecordSpotProbe(status string)
	// SetClients publishes the tracked and expired client counts.
	SetClients(total, expired int)
}

// Nop discards all observations.
type Nop struct{}

var _ Collector = Nop{}

func (Nop) RecordHeartbeat(string) {}
func (Nop) RecordPing(bool) {}
func (Nop) RecordTransition(string) {}
func (Nop) RecordAlert(string, string, bool) {}
func (Nop) RecordSpotProbe(string) {}
func (Nop) SetClients(int, int) {}
