package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const capturesYAML = `- eventName: UserRegistered
  decoded: true
  args: {user: "0x00000000000000000000000000000000000000a1", userId: alice}
  transactionHash: "0x01"
  logIndex: 0
  timestamp: 2025-01-01T00:00:00Z
- eventName: TopicCreated
  decoded: true
  args: {topicId: "1", topic: Go}
  transactionHash: "0x02"
  logIndex: 0
  timestamp: 2025-01-01T00:00:01Z
- eventName: MessageSentToTopic
  decoded: true
  args:
    user: "0x00000000000000000000000000000000000000a1"
    userId: alice
    message: hello
    msgId: "1"
    topic: General
  transactionHash: "0x03"
  logIndex: 0
  timestamp: 2025-01-01T00:00:02Z
- eventName: KarmaChanged
  decoded: true
  args: {user: "0x00000000000000000000000000000000000000a1", userId: alice, karma: "1"}
  transactionHash: "0x03"
  logIndex: 1
  timestamp: 2025-01-01T00:00:02Z
`

const aliceAddr = "0x00000000000000000000000000000000000000a1"

func writeCaptures(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "captures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(capturesYAML), 0644))
	return path
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// quietOptions returns root options whose logger discards everything below
// error.
func quietOptions(format string) *RootOptions {
	return &RootOptions{Format: format, logger: newLogger(&bytes.Buffer{}, slog.LevelError)}
}
