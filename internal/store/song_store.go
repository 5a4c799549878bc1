package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/tunegift/api/internal/model"
)

// SongStore persists finished songs and accounts for the free-tier quota.
type SongStore interface {
	CreateSong(ctx context.Context, song *model.Song) error
	FreeSongsUsed(ctx context.Context, identityKey string) (int, error)
	IncrementFreeSongs(ctx context.Context, identityKey string) error
}

// RedisSongStore stores song records as JSON and quota counters as plain
// integers. Songs have no TTL; they outlive the task record.
type RedisSongStore struct {
	redis *redis.Client
}

func NewRedisSongStore(redisClient *redis.Client) *RedisSongStore {
	return &RedisSongStore{redis: redisClient}
}

func songKey(songID string) string {
	return fmt.Sprintf("song:%s", songID)
}

func usageKey(identityKey string) string {
	return fmt.Sprintf("usage:free_songs:%s", identityKey)
}

func ownerSongsKey(identityKey string) string {
	return fmt.Sprintf("songs:%s", identityKey)
}

func (s *RedisSongStore) CreateSong(ctx context.Context, song *model.Song) error {
	data, err := json.Marshal(song)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, songKey(song.ID), data, 0).Err(); err != nil {
		return err
	}

	owner := model.Identity{UserID: song.UserID, GuestID: song.GuestID}.Key()
	if owner != "" {
		// Index for listing an owner's songs. Best-effort.
		_ = s.redis.LPush(ctx, ownerSongsKey(owner), song.ID).Err()
	}
	return nil
}

func (s *RedisSongStore) FreeSongsUsed(ctx context.Context, identityKey string) (int, error) {
	count, err := s.redis.Get(ctx, usageKey(identityKey)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

func (s *RedisSongStore) IncrementFreeSongs(ctx context.Context, identityKey string) error {
	return s.redis.Incr(ctx, usageKey(identityKey)).Err()
}

// MemorySongStore is a process-local SongStore for tests and Redis-less
// development.
type MemorySongStore struct {
	mu    sync.Mutex
	songs map[string]*model.Song
	usage map[string]int
}

func NewMemorySongStore() *MemorySongStore {
	return &MemorySongStore{
		songs: make(map[string]*model.Song),
		usage: make(map[string]int),
	}
}

func (s *MemorySongStore) CreateSong(_ context.Context, song *model.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *song
	s.songs[song.ID] = &cp
	return nil
}

func (s *MemorySongStore) FreeSongsUsed(_ context.Context, identityKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[identityKey], nil
}

func (s *MemorySongStore) IncrementFreeSongs(_ context.Context, identityKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[identityKey]++
	return nil
}

// Songs returns all stored songs, for tests.
func (s *MemorySongStore) Songs() []*model.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Song, 0, len(s.songs))
	for _, song := range s.songs {
		out = append(out, song)
	}
	return out
}
