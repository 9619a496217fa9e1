package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MarketEvent is a committed marketplace event as stored by the indexer.
type MarketEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Contract  *string         `json:"contract,omitempty"`
	TokenID   *string         `json:"token_id,omitempty"`
	BlockTime int64           `json:"block_time"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
