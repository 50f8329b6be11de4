package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"room-broker/internal/cache"
	"room-broker/internal/liveserver"
	"room-broker/internal/platform/metrics"
)

var (
	// ErrInvalidRequest is returned when a create request lacks required fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidEvent is returned when an emitted event is not valid JSON.
	ErrInvalidEvent = errors.New("event is not valid JSON")
)

// StreamAllocator reserves and releases stream keys on a live server's
// control endpoint.
type StreamAllocator interface {
	ReserveStreamKey(ctx context.Context, control, room string) (string, error)
	ReleaseStreamKey(ctx context.Context, control, room string) error
}

// Gateway is the viewer-facing event relay.
type Gateway interface {
	AddRoom(ctx context.Context, room, control string) error
	RemoveRoom(ctx context.Context, room string) error
	Stats(ctx context.Context, room string) (map[string]json.RawMessage, error)
	Emit(ctx context.Context, room string, event json.RawMessage) error
}

// Deps are the collaborators of a Service. Metrics and Clock are optional.
type Deps struct {
	Directory    Directory
	Servers      *liveserver.Registry
	Allocator    StreamAllocator
	Gateway      Gateway
	PublicDomain string

	RoomCacheTTL  time.Duration
	StatsCacheTTL time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Service orchestrates room lifecycles across the directory, the live
// servers and the gateway.
type Service struct {
	dir     Directory
	servers *liveserver.Registry
	alloc   StreamAllocator
	gw      Gateway
	domain  string
	log     *slog.Logger
	metrics *metrics.Metrics

	rooms       *cache.TTL[RoomID, Room]
	stats       *cache.TTL[RoomID, Stats]
	lookupRoom  func(context.Context, RoomID) (Room, error)
	lookupStats func(context.Context, RoomID) (Stats, error)
}

// NewService wires a Service from d.
func NewService(d Deps) *Service {
	s := &Service{
		dir:     d.Directory,
		servers: d.Servers,
		alloc:   d.Allocator,
		gw:      d.Gateway,
		domain:  d.PublicDomain,
		log:     d.Logger,
		metrics: d.Metrics,
	}

	roomOpts := []cache.Option{}
	statsOpts := []cache.Option{}
	if d.Clock != nil {
		roomOpts = append(roomOpts, cache.WithClock(d.Clock))
		statsOpts = append(statsOpts, cache.WithClock(d.Clock))
	}
	if d.Metrics != nil {
		roomOpts = append(roomOpts, cache.WithObserver(d.Metrics.CacheObserver("rooms")))
		statsOpts = append(statsOpts, cache.WithObserver(d.Metrics.CacheObserver("stats")))
	}
	s.rooms = cache.New[RoomID, Room](d.RoomCacheTTL, roomOpts...)
	s.stats = cache.New[RoomID, Stats](d.StatsCacheTTL, statsOpts...)

	s.lookupRoom = cache.Memoize(s.rooms, roomKey, s.dir.Get)
	s.lookupStats = cache.Memoize(s.stats, roomKey, s.fetchStats)

	s.log.Info("room caches ready",
		slog.Duration("room_ttl", s.rooms.TTL()),
		slog.Duration("stats_ttl", s.stats.TTL()))
	return s
}

func roomKey(id RoomID) (RoomID, bool) {
	return id, id != ""
}

func (s *Service) upstreamFailed(op string) {
	if s.metrics != nil {
		s.metrics.IncUpstreamFailures(op)
	}
}

// CreateRoom allocates req's room on a live server, announces it to the
// gateway and records it in the directory. Nothing is written to the
// directory unless both upstream calls succeed.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (CreatedRoom, error) {
	if req.RoomID == "" || req.WebhookURL == "" {
		return CreatedRoom{}, fmt.Errorf("%w: room_id and webhook_url are required", ErrInvalidRequest)
	}

	server := s.servers.Get(req.PreferredStreamID)
	id := string(req.RoomID)

	key, err := s.alloc.ReserveStreamKey(ctx, server.Control, id)
	if err != nil {
		s.upstreamFailed("reserve_stream_key")
		return CreatedRoom{}, fmt.Errorf("create room %s: %w", id, err)
	}

	if err := s.gw.AddRoom(ctx, id, server.Control); err != nil {
		s.upstreamFailed("gateway_add")
		s.log.Error("gateway rejected room after stream key was reserved",
			slog.String("room_id", id),
			slog.String("live_server", server.ID),
			slog.String("error", err.Error()))
		return CreatedRoom{}, fmt.Errorf("create room %s: %w", id, err)
	}

	room := Room{
		ID:           req.RoomID,
		LiveServerID: server.ID,
		WebhookURL:   req.WebhookURL,
		OwnerID:      req.OwnerID,
		OwnerName:    req.OwnerName,
		StreamName:   req.StreamName,
	}
	if err := s.dir.Upsert(ctx, room); err != nil {
		s.log.Error("room allocated upstream but directory write failed",
			slog.String("room_id", id),
			slog.String("live_server", server.ID),
			slog.String("error", err.Error()))
		return CreatedRoom{}, fmt.Errorf("create room %s: %w", id, err)
	}
	s.rooms.Invalidate(req.RoomID)
	s.stats.Invalidate(req.RoomID)

	if s.metrics != nil {
		s.metrics.IncRoomsCreated()
	}
	s.log.Info("room created", slog.String("room_id", id), slog.String("live_server", server.ID))

	return CreatedRoom{
		URL:       "https://" + s.domain + "/room/" + id,
		RTMP:      server.RTMP,
		Region:    server.ID,
		StreamKey: key,
	}, nil
}

// DeleteRoom releases the room upstream and then removes it from the
// directory. If an upstream call fails the directory entry is kept.
func (s *Service) DeleteRoom(ctx context.Context, id RoomID) error {
	room, err := s.dir.Get(ctx, id)
	if err != nil {
		return err
	}
	server := s.servers.Get(room.LiveServerID)

	if err := s.alloc.ReleaseStreamKey(ctx, server.Control, string(id)); err != nil {
		s.upstreamFailed("release_stream_key")
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	if err := s.gw.RemoveRoom(ctx, string(id)); err != nil {
		s.upstreamFailed("gateway_remove")
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	if err := s.dir.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	s.rooms.Invalidate(id)
	s.stats.Invalidate(id)

	if s.metrics != nil {
		s.metrics.IncRoomsDeleted()
	}
	s.log.Info("room deleted", slog.String("room_id", string(id)), slog.String("live_server", server.ID))
	return nil
}

// Room returns the directory record for id, served from the room cache for
// up to its TTL. Missing rooms are not cached.
func (s *Service) Room(ctx context.Context, id RoomID) (Room, error) {
	r, err := s.lookupRoom(ctx, id)
	if errors.Is(err, cache.ErrMissingKey) {
		return Room{}, ErrRoomNotFound
	}
	return r, err
}

// RoomStats returns the gateway's statistics for an existing room.
func (s *Service) RoomStats(ctx context.Context, id RoomID) (Stats, error) {
	if _, err := s.Room(ctx, id); err != nil {
		return nil, err
	}
	return s.lookupStats(ctx, id)
}

func (s *Service) fetchStats(ctx context.Context, id RoomID) (Stats, error) {
	st, err := s.gw.Stats(ctx, string(id))
	if err != nil {
		s.upstreamFailed("gateway_stats")
		return nil, fmt.Errorf("stats for room %s: %w", id, err)
	}
	return Stats(st), nil
}

// EmitEvent relays event to the room's channel on the gateway.
func (s *Service) EmitEvent(ctx context.Context, id RoomID, event json.RawMessage) error {
	if !json.Valid(event) {
		return ErrInvalidEvent
	}
	if _, err := s.Room(ctx, id); err != nil {
		return err
	}
	if err := s.gw.Emit(ctx, string(id), event); err != nil {
		s.upstreamFailed("gateway_emit")
		return fmt.Errorf("emit to room %s: %w", id, err)
	}
	return nil
}

// ActiveRoomCount returns the number of rooms in the directory.
func (s *Service) ActiveRoomCount(ctx context.Context) (int, error) {
	return s.dir.Count(ctx)
}
