package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/cratex/pkg/engine"
)

func encodeRecord(rec *engine.Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode execution %s: %w", rec.Result.ID, err)
	}
	return b, nil
}

func decodeRecord(b []byte) (*engine.Record, error) {
	var rec engine.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}
	return &rec, nil
}

func millisKey(ms int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(ms))
	return k[:]
}
