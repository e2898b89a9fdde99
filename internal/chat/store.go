package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/observ"
	"github.com/concord-chat/livechat/internal/storage"
)

// PinResult is the outcome of a pin toggle
type PinResult int

const (
	Pinned PinResult = iota
	Unpinned
)

// String returns a human-readable string representation of the result
func (r PinResult) String() string {
	if r == Pinned {
		return "pinned"
	}
	return "unpinned"
}

// Store holds the session's messages and the durable pin set.
// Messages are append-only and live only as long as the process;
// pins are written to storage on every change.
type Store struct {
	storage storage.Store
	logger  *zap.Logger

	messages []models.Message
	index    map[string]int
	pins     []models.PinnedMessage

	mu sync.RWMutex
}

// NewStore creates an empty store. Pins are persisted to st.
func NewStore(st storage.Store, logger *zap.Logger) *Store {
	if st == nil {
		st = storage.NewMemoryStore()
	}
	return &Store{
		storage: st,
		logger:  observ.OrNop(logger).Named("store"),
		index:   make(map[string]int),
	}
}

// Append adds a message at the end of the log
func (s *Store) Append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
}

// FilterByChannel yields the messages of one channel in insertion order.
// Each iteration reads the log as it was when the iteration started.
func (s *Store) FilterByChannel(channel string) iter.Seq[models.Message] {
	return func(yield func(models.Message) bool) {
		s.mu.RLock()
		snapshot := s.messages[:len(s.messages):len(s.messages)]
		s.mu.RUnlock()

		for _, msg := range snapshot {
			if msg.Channel != channel {
				continue
			}
			if !yield(msg) {
				return
			}
		}
	}
}

// Lookup returns the message with the given id
func (s *Store) Lookup(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Message{}, false
	}
	return s.messages[i], true
}

// Len returns the number of messages across all channels
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// TogglePin pins the snapshot if its id is not pinned, otherwise unpins
// it. The whole pin set is written before TogglePin returns; if that
// write fails the change is undone and the error returned.
func (s *Store) TogglePin(ctx context.Context, pin models.PinnedMessage) (PinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.pins
	result := Pinned
	if i := s.pinIndex(pin.ID); i >= 0 {
		next := make([]models.PinnedMessage, 0, len(s.pins)-1)
		next = append(next, s.pins[:i]...)
		s.pins = append(next, s.pins[i+1:]...)
		result = Unpinned
	} else {
		next := make([]models.PinnedMessage, len(s.pins), len(s.pins)+1)
		copy(next, s.pins)
		s.pins = append(next, pin)
	}

	if err := storage.SetJSON(ctx, s.storage, storage.KeyPinnedMessages, s.pins); err != nil {
		s.pins = previous
		return result, fmt.Errorf("failed to persist pins: %w", err)
	}

	s.logger.Debug("pin toggled",
		zap.String("id", pin.ID),
		zap.String("channel", pin.Channel),
		zap.Stringer("result", result))
	return result, nil
}

// IsPinned returns true if the id is in the pin set
func (s *Store) IsPinned(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinIndex(id) >= 0
}

// Pins returns the pins of a channel in the order they were pinned.
// An empty channel returns every pin.
func (s *Store) Pins(channel string) []models.PinnedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PinnedMessage
	for _, p := range s.pins {
		if channel == "" || p.Channel == channel {
			out = append(out, p)
		}
	}
	return out
}

// LoadPins restores the pin set from storage. A missing key is an
// empty set.
func (s *Store) LoadPins(ctx context.Context) error {
	var pins []models.PinnedMessage
	err := storage.GetJSON(ctx, s.storage, storage.KeyPinnedMessages, &pins)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pins = pins
	s.mu.Unlock()

	s.logger.Debug("pins restored", zap.Int("count", len(pins)))
	return nil
}

func (s *Store) pinIndex(id string) int {
	for i, p := range s.pins {
		if p.ID == id {
			return i
		}
	}
	return -1
}
