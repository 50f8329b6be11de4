package broker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RoomID uniquely identifies a room across every live server.
type RoomID string

// Room is the directory record for a room and the live server that owns it.
type Room struct {
	ID           RoomID `json:"room_id"`
	LiveServerID string `json:"live_server_id"`
	WebhookURL   string `json:"webhook_url"`
	OwnerID      int64  `json:"owner_id"`
	OwnerName    string `json:"owner_name"`
	StreamName   string `json:"stream_name"`
}

// CreateRoomRequest is the body of POST /api/create/room.
// PreferredStreamID names a live server; unknown or empty values use the default.
type CreateRoomRequest struct {
	RoomID            RoomID `json:"room_id"`
	PreferredStreamID string `json:"preferred_stream_id"`
	WebhookURL        string `json:"webhook_url"`
	OwnerID           int64  `json:"owner_id"`
	OwnerName         string `json:"owner_name"`
	StreamName        string `json:"stream_name"`
}

// UnmarshalJSON requires room_id, webhook_url, owner_id, owner_name and
// stream_name to be present. owner_id may be a JSON number or a string
// holding an integer.
func (r *CreateRoomRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		RoomID            *string      `json:"room_id"`
		PreferredStreamID *string      `json:"preferred_stream_id"`
		WebhookURL        *string      `json:"webhook_url"`
		OwnerID           *json.Number `json:"owner_id"`
		OwnerName         *string      `json:"owner_name"`
		StreamName        *string      `json:"stream_name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var missing []string
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"room_id", raw.RoomID != nil},
		{"webhook_url", raw.WebhookURL != nil},
		{"owner_id", raw.OwnerID != nil},
		{"owner_name", raw.OwnerName != nil},
		{"stream_name", raw.StreamName != nil},
	} {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}

	ownerID, err := raw.OwnerID.Int64()
	if err != nil {
		return fmt.Errorf("%w: owner_id must be an integer", ErrInvalidRequest)
	}

	*r = CreateRoomRequest{
		RoomID:     RoomID(*raw.RoomID),
		WebhookURL: *raw.WebhookURL,
		OwnerID:    ownerID,
		OwnerName:  *raw.OwnerName,
		StreamName: *raw.StreamName,
	}
	if raw.PreferredStreamID != nil {
		r.PreferredStreamID = *raw.PreferredStreamID
	}
	return nil
}

// CreatedRoom is returned to the bot after a room has been allocated.
type CreatedRoom struct {
	URL       string `json:"url"`
	RTMP      string `json:"rtmp"`
	Region    string `json:"region"`
	StreamKey string `json:"stream_key"`
}

// RoomInfo is the public summary served to viewers.
type RoomInfo struct {
	OwnerName  string `json:"owner_name"`
	StreamName string `json:"stream_name"`
}

// Stats is the gateway's statistics document for a room, passed through as-is.
type Stats map[string]json.RawMessage
