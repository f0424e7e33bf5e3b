package vmbackup

import "testing"

func TestStateString(t *testing.T) {
	if got := CommitFailed.String(); got != "commit-failed" {
		t.Fatalf("CommitFailed.String() = %q", got)
	}
	if got := State(99).String(); got != "unknown" {
		t.Fatalf("State(99).String() = %q", got)
	}
}
