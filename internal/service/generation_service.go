package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tunegift/api/internal/client"
	"github.com/tunegift/api/internal/config"
	"github.com/tunegift/api/internal/model"
	"github.com/tunegift/api/internal/store"
)

// ErrPaymentRequired signals the free-song quota is exhausted.
var ErrPaymentRequired = errors.New("free song limit reached")

// ErrNotConfigured signals missing provider credentials.
var ErrNotConfigured = errors.New("music provider is not configured")

// PollEnqueuer hands a registered task to the background poll worker.
type PollEnqueuer interface {
	EnqueuePoll(ctx context.Context, taskID string) error
}

// GenerationService drives one music generation task end-to-end: paywall
// gate, provider submit, task registration, poll job enqueue.
type GenerationService struct {
	provider client.MusicProvider
	tasks    store.TaskStore
	songs    store.SongStore
	enqueuer PollEnqueuer
	lyrics   *LyricsService
	cfg      *config.Config
}

func NewGenerationService(
	provider client.MusicProvider,
	tasks store.TaskStore,
	songs store.SongStore,
	enqueuer PollEnqueuer,
	lyrics *LyricsService,
	cfg *config.Config,
) *GenerationService {
	return &GenerationService{
		provider: provider,
		tasks:    tasks,
		songs:    songs,
		enqueuer: enqueuer,
		lyrics:   lyrics,
		cfg:      cfg,
	}
}

// Start submits a generation request and returns a local task handle the
// client polls. The provider submit is awaited; everything after the task
// is registered happens in the poll worker.
func (s *GenerationService) Start(ctx context.Context, req *model.GenerateRequest, identity model.Identity) (*model.GenerateResponse, error) {
	if s.provider == nil || !s.provider.IsConfigured() {
		return nil, ErrNotConfigured
	}

	if err := s.checkQuota(ctx, identity); err != nil {
		return nil, err
	}

	title := defaultTitle(req)
	lyrics := req.Lyrics
	if lyrics == "" {
		generatedTitle, generated, err := s.lyrics.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		title = generatedTitle
		lyrics = generated
	}

	providerJobID, err := s.provider.Generate(ctx, &client.GenerateSongRequest{
		Prompt:       lyrics,
		Style:        buildStyle(req),
		Title:        title,
		CustomMode:   true,
		Instrumental: req.VocalPreference == model.VocalInstrumental,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := &model.GenerationTask{
		TaskID:         newTaskID(),
		ProviderJobIDs: []string{providerJobID},
		Status:         model.TaskStatusProcessing,
		AudioClips:     []model.Clip{},
		TotalExpected:  s.cfg.Suno.ExpectedClips,
		Lyrics:         lyrics,
		Metadata: model.TaskMetadata{
			SongTitle:     title,
			Occasion:      req.Occasion,
			RecipientName: req.RecipientName,
			Genre:         req.Genre,
			Mood:          req.Mood,
			UserID:        identity.UserID,
			GuestID:       identity.GuestID,
		},
		StartTime:  now,
		LastUpdate: now,
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to register task: %w", err)
	}

	if err := s.enqueuer.EnqueuePoll(ctx, task.TaskID); err != nil {
		return nil, fmt.Errorf("failed to enqueue poll job: %w", err)
	}

	log.Printf("[Generation] task %s started (provider job %s) for %s", task.TaskID, providerJobID, identity.Key())

	return &model.GenerateResponse{
		Success:       true,
		TaskID:        task.TaskID,
		Status:        task.Status,
		ExpectedClips: task.TotalExpected,
	}, nil
}

// Status is the read-through for client-side polling. No side effects.
func (s *GenerationService) Status(ctx context.Context, taskID string) (*model.StatusResponse, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	clips := task.AudioClips
	if clips == nil {
		clips = []model.Clip{}
	}

	return &model.StatusResponse{
		Success:        true,
		TaskID:         task.TaskID,
		Status:         task.Status,
		AudioClips:     clips,
		CompletedClips: task.CompletedClips,
		TotalExpected:  task.TotalExpected,
		Lyrics:         task.Lyrics,
		Metadata:       task.Metadata,
		ElapsedTime:    int64(time.Since(task.StartTime).Seconds()),
		Error:          task.Error,
	}, nil
}

// checkQuota gates the paywall. The same FreeSongLimit constant drives the
// increment on persistence, so the two sides cannot drift.
func (s *GenerationService) checkQuota(ctx context.Context, identity model.Identity) error {
	key := identity.Key()
	if key == "" {
		return nil
	}

	used, err := s.songs.FreeSongsUsed(ctx, key)
	if err != nil {
		// Quota lookup failure is not worth blocking a paying flow over.
		log.Printf("[Generation] quota lookup failed for %s, allowing: %v", key, err)
		return nil
	}
	if used >= s.cfg.Paywall.FreeSongLimit {
		return ErrPaymentRequired
	}
	return nil
}

func buildStyle(req *model.GenerateRequest) string {
	parts := []string{string(req.Genre), string(req.Mood)}
	if req.Tempo != "" {
		parts = append(parts, string(req.Tempo)+" tempo")
	}
	if req.VocalPreference != "" && req.VocalPreference != model.VocalAny && req.VocalPreference != model.VocalInstrumental {
		parts = append(parts, string(req.VocalPreference)+" vocals")
	}
	return strings.Join(parts, ", ")
}

// newTaskID builds the public task handle, distinct from the provider's
// own job id.
func newTaskID() string {
	return fmt.Sprintf("task_%d_%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}
