package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// TypeMediaDelete is a blob that must be removed because its entry is gone.
const TypeMediaDelete = "media.delete"

// MediaDelete is the body of a TypeMediaDelete message.
type MediaDelete struct {
	Path      string    `json:"path"`
	StudentID string    `json:"studentId,omitempty"`
	EntryID   string    `json:"entryId,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	NotBefore time.Time `json:"notBefore,omitempty"`
}

// NewMediaDelete wraps a delete request in a message.
func NewMediaDelete(md MediaDelete) (Message, error) {
	body, err := json.Marshal(md)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeMediaDelete, Body: body}, nil
}

// DecodeMediaDelete extracts the delete request from msg.
func DecodeMediaDelete(msg Message) (MediaDelete, error) {
	if msg.Type != TypeMediaDelete {
		return MediaDelete{}, fmt.Errorf("queue: unexpected message type %q", msg.Type)
	}
	var md MediaDelete
	if err := json.Unmarshal(msg.Body, &md); err != nil {
		return MediaDelete{}, fmt.Errorf("queue: decode %s: %w", msg.Type, err)
	}
	return md, nil
}
