package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/abidecode"
	"github.com/roach88/chatsync/internal/event"
	"github.com/roach88/chatsync/internal/eventlog"
)

func topicCreatedLog(t *testing.T, tx string, id int, name string) abidecode.RawLog {
	t.Helper()
	a, err := abidecode.ChatAppABI()
	require.NoError(t, err)
	e := a.Events()[event.NameTopicCreated]
	require.NotNil(t, e)

	data, err := abi.ParameterArray{e.Inputs[1]}.EncodeABIDataValues(map[string]interface{}{"topic": name})
	require.NoError(t, err)

	idHex := fmt.Sprintf("%x", id)
	return abidecode.RawLog{
		TransactionHash: tx,
		Topics:          []string{e.SignatureHashBytes().String(), "0x" + strings.Repeat("0", 64-len(idHex)) + idHex},
		Data:            fmt.Sprintf("0x%x", data),
		Timestamp:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func writeLogs(t *testing.T, dir string, logs ...abidecode.RawLog) string {
	t.Helper()
	data, err := json.Marshal(logs)
	require.NoError(t, err)
	path := filepath.Join(dir, "logs.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestDecodeCommand_Text(t *testing.T) {
	dir := t.TempDir()
	logs := writeLogs(t, dir,
		topicCreatedLog(t, "0xaa", 1, "Go"),
		abidecode.RawLog{TransactionHash: "0xbb", LogIndex: 2, Topics: []string{"0x" + strings.Repeat("1", 64)}, Data: "0x"},
	)

	out, err := execute(t, NewDecodeCommand(quietOptions("text")), logs)
	require.NoError(t, err)
	assert.Contains(t, out, "0xaa-0 TopicCreated")
	assert.Contains(t, out, "0xbb-2 ? (undecoded)")
	assert.Contains(t, out, "Decoded 1, undecoded 1")
}

func TestDecodeCommand_JSON(t *testing.T) {
	logs := writeLogs(t, t.TempDir(), topicCreatedLog(t, "0xaa", 3, "Rust"))

	out, err := execute(t, NewDecodeCommand(quietOptions("json")), logs)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   DecodeResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Events, 1)
	assert.Equal(t, "Rust", resp.Data.Events[0].Args["topic"])
	assert.Equal(t, "3", resp.Data.Events[0].Args["topicId"])
	assert.Equal(t, 0, resp.Data.Appended)
}

func TestDecodeCommand_AppendsToLog(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	logs := writeLogs(t, dir, topicCreatedLog(t, "0xaa", 1, "Go"))

	out, err := execute(t, NewDecodeCommand(quietOptions("text")), logs, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 appended to log")

	log, err := eventlog.Open(dbPath)
	require.NoError(t, err)
	defer log.Close()
	n, err := log.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDecodeCommand_MissingFile(t *testing.T) {
	_, err := execute(t, NewDecodeCommand(quietOptions("text")), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
