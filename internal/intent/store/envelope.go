// Package store holds the encoding shared by the key-value intent stores.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

type envelope struct {
	Result    []byte    `json:"result"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Encode serializes rec for a key-value store.
func Encode(rec intent.Record) ([]byte, error) {
	raw, err := json.Marshal(envelope{Result: rec.Result, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return nil, fmt.Errorf("encode intent record: %w", err)
	}
	return raw, nil
}

// Decode restores a record written by Encode.
func Decode(intentID id.IntentID, raw []byte) (*intent.Record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode intent record: %w", err)
	}
	return &intent.Record{
		IntentID:  intentID,
		Result:    env.Result,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}, nil
}

// Key namespaces intent ids inside shared key-value stores.
func Key(intentID id.IntentID) string {
	return "intent:" + intentID.String()
}
