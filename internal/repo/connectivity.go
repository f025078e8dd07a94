package repo

import "context"

// Connectivity is the result of a reachability probe.
type Connectivity int

const (
	ConnectivityUnknown Connectivity = iota
	ConnectivityOnline
	ConnectivityOffline
)

// ConnectivityProbe checks whether the remote is currently reachable.
// Implementation (ping, HTTP HEAD, DNS lookup, ...) is the caller's
// choice; Facade only needs the tri-state result.
type ConnectivityProbe interface {
	Check(ctx context.Context) Connectivity
}

// isOffline treats ConnectivityUnknown (including a nil probe) as online,
// per the "unknown state is treated as online for the purpose of
// attempting operations" rule.
func (f *Facade) isOffline(ctx context.Context) bool {
	if f.Connectivity == nil {
		return false
	}
	return f.Connectivity.Check(ctx) == ConnectivityOffline
}
