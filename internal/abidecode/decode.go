// Package abidecode turns raw EVM logs into ContractEvents using the ChatApp
// contract ABI.
//
// A log whose first topic matches a known event signature and whose topics
// and data decode against that event becomes a decoded ContractEvent with
// its arguments rendered as JSON-friendly values (integers as base-10
// strings, addresses as 0x-prefixed lowercase hex). Anything else is kept as
// an undecoded envelope so the classifier can drop it.
package abidecode

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"

	"github.com/roach88/chatsync/internal/event"
)

//go:embed chatapp.abi.json
var chatAppABIJSON []byte

// ChatAppABI parses the embedded ChatApp event ABI.
func ChatAppABI() (abi.ABI, error) {
	var a abi.ABI
	if err := json.Unmarshal(chatAppABIJSON, &a); err != nil {
		return nil, fmt.Errorf("parse ChatApp ABI: %w", err)
	}
	return a, nil
}

// RawLog is one log entry as returned by eth_getLogs, plus the block time.
type RawLog struct {
	Address         string    `json:"address,omitempty" yaml:"address,omitempty"`
	TransactionHash string    `json:"transactionHash" yaml:"transactionHash"`
	LogIndex        int64     `json:"logIndex" yaml:"logIndex"`
	Topics          []string  `json:"topics" yaml:"topics"`
	Data            string    `json:"data" yaml:"data"`
	Timestamp       time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Decoder matches logs against a set of event definitions.
//
// Thread-safety: a Decoder is immutable after construction and safe for
// concurrent use.
type Decoder struct {
	bySignature map[string]*abi.Entry
	serializer  *abi.Serializer
}

// NewDecoder creates a decoder for the events of a. With no argument the
// ChatApp ABI is used.
func NewDecoder(a ...abi.ABI) (*Decoder, error) {
	var entries abi.ABI
	if len(a) == 0 {
		chat, err := ChatAppABI()
		if err != nil {
			return nil, err
		}
		entries = chat
	} else {
		for _, x := range a {
			entries = append(entries, x...)
		}
	}

	d := &Decoder{
		bySignature: make(map[string]*abi.Entry),
		serializer: abi.NewSerializer().
			SetFormattingMode(abi.FormatAsObjects).
			SetIntSerializer(abi.Base10StringIntSerializer).
			SetFloatSerializer(abi.Base10StringFloatSerializer).
			SetByteSerializer(abi.HexByteSerializer0xPrefix),
	}
	for _, e := range entries {
		if e.Type != abi.Event {
			continue
		}
		d.bySignature[e.SignatureHashBytes().String()] = e
	}
	return d, nil
}

// Decode converts one log. It never fails: a log that does not decode is
// returned with Decoded false, and with EventName set when the signature
// was recognized.
func (d *Decoder) Decode(ctx context.Context, l RawLog) event.ContractEvent {
	ev := event.ContractEvent{
		TransactionHash: l.TransactionHash,
		LogIndex:        l.LogIndex,
		Timestamp:       l.Timestamp,
	}
	if len(l.Topics) == 0 {
		return ev
	}

	entry, ok := d.bySignature[strings.ToLower(l.Topics[0])]
	if !ok {
		return ev
	}
	ev.EventName = entry.Name

	args, err := d.decodeArgs(ctx, entry, l)
	if err != nil {
		return ev
	}
	ev.Args = args
	ev.Decoded = true
	return ev
}

// DecodeAll converts logs in order.
func (d *Decoder) DecodeAll(ctx context.Context, logs []RawLog) []event.ContractEvent {
	out := make([]event.ContractEvent, len(logs))
	for i, l := range logs {
		out[i] = d.Decode(ctx, l)
	}
	return out
}

func (d *Decoder) decodeArgs(ctx context.Context, entry *abi.Entry, l RawLog) (map[string]any, error) {
	topics := make([]ethtypes.HexBytes0xPrefix, len(l.Topics))
	for i, t := range l.Topics {
		b, err := decodeHex(t)
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", i, err)
		}
		topics[i] = b
	}
	data, err := decodeHex(l.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	cv, err := entry.DecodeEventDataCtx(ctx, topics, data)
	if err != nil {
		return nil, err
	}
	raw, err := d.serializer.SerializeJSONCtx(ctx, cv)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}

	for _, in := range entry.Inputs {
		if in.Type != "address" {
			continue
		}
		if s, ok := args[in.Name].(string); ok {
			args[in.Name] = normalizeAddress(s)
		}
	}
	return args, nil
}

func decodeHex(s string) (ethtypes.HexBytes0xPrefix, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ethtypes.HexBytes0xPrefix(b), nil
}

func normalizeAddress(s string) string {
	s = strings.ToLower(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}
