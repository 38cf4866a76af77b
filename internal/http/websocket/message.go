package websocket

import "github.com/google/uuid"

type SocketMessageType int

const (
	Update SocketMessageType = iota
	Welcome
)

// SocketMessage is the envelope pushed to connected clients. Target, when
// set, restricts delivery to the client with a matching UUID; otherwise the
// message is broadcast to every connected client.
type SocketMessage struct {
	Title  string                 `json:"title"`
	Body   map[string]interface{} `json:"arguments"`
	Type   SocketMessageType      `json:"type"`
	Target *uuid.UUID             `json:"-"`
}
