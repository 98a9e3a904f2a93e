package agent

import "time"

// Agent is a node in the upline forest. UplineNPN is nil for top-of-hierarchy agents.
type Agent struct {
	NPN       string
	UplineNPN *string
	Name      string
	CreatedAt time.Time
}
