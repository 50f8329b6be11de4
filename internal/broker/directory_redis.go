package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	redisRoomPrefix = "room:"
	redisRoomIndex  = "rooms"
)

// RedisDirectory stores each room as a hash under "room:<id>" and keeps the
// set of ids in "rooms". Upserts and deletes run in MULTI/EXEC so no client
// observes a partially written room.
type RedisDirectory struct {
	client *redis.Client
}

// RedisConfig holds connection parameters for RedisDirectory.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// OpenRedisDirectory connects and pings the server.
func OpenRedisDirectory(ctx context.Context, cfg RedisConfig) (*RedisDirectory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis directory: ping %s: %w", cfg.Addr, err)
	}
	return &RedisDirectory{client: client}, nil
}

func redisRoomKey(id RoomID) string {
	return redisRoomPrefix + string(id)
}

// Get implements Directory.Get.
func (d *RedisDirectory) Get(ctx context.Context, id RoomID) (Room, error) {
	fields, err := d.client.HGetAll(ctx, redisRoomKey(id)).Result()
	if err != nil {
		return Room{}, fmt.Errorf("redis directory: get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return Room{}, ErrRoomNotFound
	}

	ownerID, err := strconv.ParseInt(fields["owner_id"], 10, 64)
	if err != nil {
		return Room{}, fmt.Errorf("redis directory: room %s owner_id: %w", id, err)
	}
	return Room{
		ID:           id,
		LiveServerID: fields["live_server_id"],
		WebhookURL:   fields["webhook_url"],
		OwnerID:      ownerID,
		OwnerName:    fields["owner_name"],
		StreamName:   fields["stream_name"],
	}, nil
}

// Upsert implements Directory.Upsert.
func (d *RedisDirectory) Upsert(ctx context.Context, r Room) error {
	if err := validateRoom(r); err != nil {
		return err
	}
	key := redisRoomKey(r.ID)
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"live_server_id", r.LiveServerID,
			"webhook_url", r.WebhookURL,
			"owner_id", strconv.FormatInt(r.OwnerID, 10),
			"owner_name", r.OwnerName,
			"stream_name", r.StreamName,
		)
		pipe.SAdd(ctx, redisRoomIndex, string(r.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis directory: upsert %s: %w", r.ID, err)
	}
	return nil
}

// Delete implements Directory.Delete.
func (d *RedisDirectory) Delete(ctx context.Context, id RoomID) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisRoomKey(id))
		pipe.SRem(ctx, redisRoomIndex, string(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis directory: delete %s: %w", id, err)
	}
	return nil
}

// Count implements Directory.Count.
func (d *RedisDirectory) Count(ctx context.Context) (int, error) {
	n, err := d.client.SCard(ctx, redisRoomIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("redis directory: count: %w", err)
	}
	return int(n), nil
}

// Close implements Directory.Close.
func (d *RedisDirectory) Close() error {
	return d.client.Close()
}
