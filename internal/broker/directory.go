package broker

import (
	"context"
	"errors"
	"sync"
)

// Directory is the durable source of truth mapping room ids to rooms.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Get returns the room with the given id, or ErrRoomNotFound.
	Get(ctx context.Context, id RoomID) (Room, error)

	// Upsert inserts r, or replaces every non-key field of the existing room
	// with the same id. The write is atomic: readers see the old record or
	// the new one, never a mix.
	Upsert(ctx context.Context, r Room) error

	// Delete removes the room. Deleting an absent room is a no-op.
	Delete(ctx context.Context, id RoomID) error

	// Count returns the number of rooms. Used for metrics.
	Count(ctx context.Context) (int, error)

	// Close releases the backend.
	Close() error
}

var (
	// ErrRoomNotFound is returned when no room has the requested id.
	ErrRoomNotFound = errors.New("room not found")

	// ErrInvalidRoom is returned when a room cannot be stored as given.
	ErrInvalidRoom = errors.New("invalid room")
)

func validateRoom(r Room) error {
	if r.ID == "" {
		return ErrInvalidRoom
	}
	return nil
}

// InMemoryDirectory is a map-backed Directory guarded by a RWMutex. It does
// not survive a restart and is meant for tests and local development.
type InMemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[RoomID]Room
}

// NewInMemoryDirectory returns an empty in-memory directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{rooms: make(map[RoomID]Room)}
}

// Get implements Directory.Get.
func (d *InMemoryDirectory) Get(_ context.Context, id RoomID) (Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return r, nil
}

// Upsert implements Directory.Upsert.
func (d *InMemoryDirectory) Upsert(_ context.Context, r Room) error {
	if err := validateRoom(r); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[r.ID] = r
	return nil
}

// Delete implements Directory.Delete.
func (d *InMemoryDirectory) Delete(_ context.Context, id RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, id)
	return nil
}

// Count implements Directory.Count.
func (d *InMemoryDirectory) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms), nil
}

// Close implements Directory.Close.
func (d *InMemoryDirectory) Close() error {
	return nil
}
