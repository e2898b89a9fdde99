package chat

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/livechat/internal/models"
	"github.com/concord-chat/livechat/internal/storage"
)

// failingStorage rejects writes
type failingStorage struct {
	*storage.MemoryStore
}

func (failingStorage) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestStore_AppendAndFilter(t *testing.T) {
	store := NewStore(nil, nil)

	a := models.NewMessage(models.Remote("u2"), "general", "a")
	b := models.NewMessage(models.Self(), "random", "b")
	c := models.NewMessage(models.Self(), "general", "c")
	store.Append(a)
	store.Append(b)
	store.Append(c)

	assert.Equal(t, 3, store.Len())
	assert.Equal(t, []string{"a", "c"}, texts(store.FilterByChannel("general")))
	assert.Equal(t, []string{"b"}, texts(store.FilterByChannel("random")))

	got, ok := store.Lookup(b.ID)
	require.True(t, ok)
	assert.Equal(t, "b", got.Text)

	_, ok = store.Lookup("missing")
	assert.False(t, ok)
}

func TestStore_FilterIsRestartableAndLazy(t *testing.T) {
	store := NewStore(nil, nil)
	for _, text := range []string{"1", "2", "3"} {
		store.Append(models.NewMessage(models.Self(), "general", text))
	}

	seq := store.FilterByChannel("general")
	assert.Equal(t, []string{"1", "2", "3"}, texts(seq))

	// Appends after creation are visible to the next iteration
	store.Append(models.NewMessage(models.Self(), "general", "4"))
	assert.Equal(t, []string{"1", "2", "3", "4"}, texts(seq))

	// Stopping early is honoured
	var first []string
	for msg := range seq {
		first = append(first, msg.Text)
		break
	}
	assert.Equal(t, []string{"1"}, first)
}

func TestStore_FilterSnapshotIgnoresConcurrentAppends(t *testing.T) {
	store := NewStore(nil, nil)
	store.Append(models.NewMessage(models.Self(), "general", "1"))

	var seen []string
	for msg := range store.FilterByChannel("general") {
		seen = append(seen, msg.Text)
		store.Append(models.NewMessage(models.Self(), "general", "more"))
	}
	assert.Equal(t, []string{"1"}, seen)
	assert.Equal(t, 2, store.Len())
}

func TestStore_TogglePinPersists(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	store := NewStore(st, nil)

	msg := models.NewMessage(models.Remote("u2"), "general", "pin me")
	store.Append(msg)

	result, err := store.TogglePin(ctx, msg.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, Pinned, result)
	assert.True(t, store.IsPinned(msg.ID))

	var persisted []models.PinnedMessage
	require.NoError(t, storage.GetJSON(ctx, st, storage.KeyPinnedMessages, &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, msg.ID, persisted[0].ID)
	assert.Equal(t, "pin me", persisted[0].Text)

	// A fresh store over the same storage sees the pin
	restored := NewStore(st, nil)
	require.NoError(t, restored.LoadPins(ctx))
	assert.True(t, restored.IsPinned(msg.ID))
	assert.Equal(t, "pin me", restored.Pins("general")[0].Text)

	result, err = store.TogglePin(ctx, msg.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, Unpinned, result)
	assert.False(t, store.IsPinned(msg.ID))

	persisted = nil
	require.NoError(t, storage.GetJSON(ctx, st, storage.KeyPinnedMessages, &persisted))
	assert.Empty(t, persisted)
}

func TestStore_TogglePinRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore(failingStorage{storage.NewMemoryStore()}, nil)

	msg := models.NewMessage(models.Self(), "general", "x")
	_, err := store.TogglePin(ctx, msg.Snapshot())

	assert.Error(t, err)
	assert.False(t, store.IsPinned(msg.ID))
	assert.Empty(t, store.Pins(""))
}

func TestStore_PinsByChannel(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, nil)

	g1 := models.NewMessage(models.Self(), "general", "g1")
	r1 := models.NewMessage(models.Self(), "random", "r1")
	g2 := models.NewMessage(models.Self(), "general", "g2")
	for _, m := range []models.Message{g1, r1, g2} {
		_, err := store.TogglePin(ctx, m.Snapshot())
		require.NoError(t, err)
	}

	ids := func(pins []models.PinnedMessage) []string {
		var out []string
		for _, p := range pins {
			out = append(out, p.ID)
		}
		return out
	}
	assert.Equal(t, []string{g1.ID, g2.ID}, ids(store.Pins("general")))
	assert.Equal(t, []string{r1.ID}, ids(store.Pins("random")))
	assert.Len(t, store.Pins(""), 3)

	// Pin toggling never touches the message log
	assert.Zero(t, store.Len())
}

func TestStore_LoadPinsMissingKey(t *testing.T) {
	store := NewStore(storage.NewMemoryStore(), nil)
	require.NoError(t, store.LoadPins(context.Background()))
	assert.Empty(t, store.Pins(""))
}

func TestStore_LoadPinsCorrupt(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	require.NoError(t, st.Set(ctx, storage.KeyPinnedMessages, "{not json"))

	store := NewStore(st, nil)
	assert.Error(t, store.LoadPins(ctx))
}

func TestStore_SeqOrdering(t *testing.T) {
	store := NewStore(nil, nil)
	for i := 0; i < 10; i++ {
		store.Append(models.NewMessage(models.Self(), "general", "m"))
	}
	msgs := slices.Collect(store.FilterByChannel("general"))
	assert.True(t, slices.IsSortedFunc(msgs, func(a, b models.Message) int {
		return int(a.Seq) - int(b.Seq)
	}))
}
