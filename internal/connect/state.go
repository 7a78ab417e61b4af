package connect

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// PendingAuthorization is kept server side between InitiateAuthorization and
// the provider callback, keyed by its nonce.
type PendingAuthorization struct {
	UserID    string    `json:"userId"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"createdAt"`
}

// authorizationState is the value round-tripped through the provider.
type authorizationState struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

func encodeState(state authorizationState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

var stateEncodings = []*base64.Encoding{
	base64.RawURLEncoding,
	base64.URLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

func decodeState(raw string) (*authorizationState, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidState
	}
	var data []byte
	for _, enc := range stateEncodings {
		if decoded, err := enc.DecodeString(raw); err == nil {
			data = decoded
			break
		}
	}
	if data == nil {
		return nil, ErrInvalidState
	}
	var state authorizationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, ErrInvalidState
	}
	if state.UserID == "" || state.Nonce == "" || state.Timestamp == 0 {
		return nil, ErrInvalidState
	}
	return &state, nil
}
