// Package messages is the per-job chat between the office and the crew.
// The thread is append-only; nothing ever edits or removes a sent line.
package messages

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/foamcrew/foamcrew/internal/store"
)

// Sender identifies which side of the chat wrote a message.
type Sender string

const (
	SenderAdmin Sender = "Admin"
	SenderCrew  Sender = "Crew"
)

// Message is one chat line, attached to a job record by EstimateID.
type Message struct {
	ID         string   `json:"id"`
	EstimateID string   `json:"estimateId"`
	Sender     Sender   `json:"sender"`
	Content    string   `json:"content"`
	Timestamp  string   `json:"timestamp"`
	ReadBy     []string `json:"readBy"`
}

// TailLimit bounds every message read to the recent window. Older
// history stays stored but is never shipped to clients.
const TailLimit = 200

// Service appends to and reads the chat.
type Service struct {
	store *store.Store
	now   func() time.Time
	newID func() string
}

func NewService(s *store.Store) *Service {
	return &Service{store: s, now: time.Now, newID: uuid.NewString}
}

// Send appends one message. An unrecognized sender is stored as Admin.
func (s *Service) Send(ctx context.Context, tenantID, estimateID, content string, sender Sender) (Message, error) {
	if sender != SenderAdmin && sender != SenderCrew {
		sender = SenderAdmin
	}
	now := s.now().UTC()
	msg := Message{
		ID:         s.newID(),
		EstimateID: estimateID,
		Sender:     sender,
		Content:    content,
		Timestamp:  now.Format(time.RFC3339),
		ReadBy:     []string{},
	}
	fields := store.Fields{
		"estimate_id": msg.EstimateID,
		"sender":      string(msg.Sender),
		"created_at":  now,
	}
	if err := s.store.Put(ctx, store.Messages, tenantID, msg.ID, msg, fields); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Tail returns the most recent messages in chronological order.
func (s *Service) Tail(ctx context.Context, tenantID string) ([]Message, error) {
	docs, err := s.store.Tail(ctx, store.Messages, tenantID, TailLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		var msg Message
		if store.Decode(docs[i], &msg) {
			out = append(out, msg)
		}
	}
	return out, nil
}

// TailSince walks the recent window newest-first and stops at the first
// message at or before since. Results come back oldest-first.
func (s *Service) TailSince(ctx context.Context, tenantID string, since time.Time) ([]Message, error) {
	docs, err := s.store.Tail(ctx, store.Messages, tenantID, TailLimit)
	if err != nil {
		return nil, err
	}
	var fresh []Message
	for _, doc := range docs {
		var msg Message
		if !store.Decode(doc, &msg) {
			continue
		}
		at, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil || !at.After(since) {
			break
		}
		fresh = append(fresh, msg)
	}
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh, nil
}
