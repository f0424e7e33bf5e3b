package vmbackup

// State is a step of a domain's backup lifecycle.
type State int

// Lifecycle order: Idle, SnapshotRequested, SnapshotActive, Transferring,
// Committing, then Committed or CommitFailed. Rotating follows a successful
// transfer independently of the commit outcome.
const (
	Idle State = iota
	SnapshotRequested
	SnapshotActive
	Transferring
	Committing
	Committed
	CommitFailed
	Rotating
)

var stateNames = [...]string{
	Idle:              "idle",
	SnapshotRequested: "snapshot-requested",
	SnapshotActive:    "snapshot-active",
	Transferring:      "transferring",
	Committing:        "committing",
	Committed:         "committed",
	CommitFailed:      "commit-failed",
	Rotating:          "rotating",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
