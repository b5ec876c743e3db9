package cache

import (
	"encoding/json"
	"fmt"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

// CachedPOI is a POI as held in Redis. IsPersisted is false once the record
// was edited in the cache and not yet flushed.
type CachedPOI struct {
	store.POI
	IsPersisted bool `json:"isPersisted"`
}

type CachedConnection struct {
	store.POIConnection
	IsPersisted bool `json:"isPersisted"`
}

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode cache record: %w", err)
	}
	return string(raw), nil
}

func decodePOI(raw string) (CachedPOI, error) {
	var item CachedPOI
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return CachedPOI{}, fmt.Errorf("decode cached poi: %w", err)
	}
	return item, nil
}

func decodeConnection(raw string) (CachedConnection, error) {
	var item CachedConnection
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return CachedConnection{}, fmt.Errorf("decode cached connection: %w", err)
	}
	return item, nil
}
