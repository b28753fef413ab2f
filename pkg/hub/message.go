// Package hub fans messages out to websocket clients. A single Run goroutine
// owns registration and delivery; slow clients are dropped, never waited on.
package hub

import "github.com/gofiber/websocket/v2"

// Message is one broadcast payload. Status snapshots go out as text frames,
// preview JPEGs as binary frames.
type Message struct {
	Binary bool
	Data   []byte
}

// JSON wraps pre-encoded JSON.
func JSON(data []byte) Message { return Message{Data: data} }

// Binary wraps raw bytes.
func Binary(data []byte) Message { return Message{Binary: true, Data: data} }

func (m Message) frameType() int {
	if m.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
