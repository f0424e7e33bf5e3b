package runnertest_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unraid-backup/src/runner"
	"unraid-backup/src/runner/runnertest"
)

func TestFake_LongestPrefixWins(t *testing.T) {
	for range 20 {
		fake := runnertest.New()
		fake.Outputs["rsync"] = "generic"
		fake.Outputs["rsync --dry-run"] = "dry"
		fake.Fail["virsh"] = 1
		fake.Fail["virsh blockcommit"] = 2

		rc, err := fake.Stream(context.Background(), "rsync", "--dry-run", "-iavu")
		require.NoError(t, err)
		out, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "dry", string(out))

		var exit *runner.ExitError
		require.ErrorAs(t, fake.Run(context.Background(), "virsh", "blockcommit", "Ubuntu"), &exit)
		assert.Equal(t, 2, exit.Code)
		require.ErrorAs(t, fake.Run(context.Background(), "virsh", "snapshot-delete"), &exit)
		assert.Equal(t, 1, exit.Code)
	}
}
