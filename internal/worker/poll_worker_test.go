package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tunegift/api/internal/client"
	"github.com/tunegift/api/internal/config"
	"github.com/tunegift/api/internal/model"
	"github.com/tunegift/api/internal/store"
)

// scriptedProvider replays one RecordInfo result per poll attempt and then
// repeats the final step.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []pollStep
	calls int
}

type pollStep struct {
	info *client.RecordInfo
	err  error
}

func pending() pollStep {
	return pollStep{info: &client.RecordInfo{Status: client.StatusPending}}
}

func success(status string, clipIDs ...string) pollStep {
	clips := make([]client.SunoClip, 0, len(clipIDs))
	for _, id := range clipIDs {
		clips = append(clips, client.SunoClip{
			ID:       id,
			Title:    "Take " + id,
			AudioURL: "https://cdn.provider.example/" + id + ".mp3",
			ImageURL: "https://cdn.provider.example/" + id + ".jpg",
		})
	}
	return pollStep{info: &client.RecordInfo{
		Status:   status,
		Response: &client.RecordResponse{SunoData: clips},
	}}
}

func (p *scriptedProvider) Generate(context.Context, *client.GenerateSongRequest) (string, error) {
	return "provider-abc", nil
}

func (p *scriptedProvider) RecordInfo(context.Context, string) (*client.RecordInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.calls++
	step := p.steps[i]
	return step.info, step.err
}

func (p *scriptedProvider) IsConfigured() bool { return true }

type failingSongStore struct {
	*store.MemorySongStore
}

func (s *failingSongStore) CreateSong(context.Context, *model.Song) error {
	return errors.New("write refused")
}

func workerConfig(maxAttempts, freeLimit int) *config.Config {
	return &config.Config{
		Paywall: config.PaywallConfig{FreeSongLimit: freeLimit},
		Poll:    config.PollConfig{InitialDelay: 0, Interval: 0, MaxAttempts: maxAttempts},
	}
}

func seedTask(t *testing.T, tasks store.TaskStore, userID string) *model.GenerationTask {
	t.Helper()
	now := time.Now()
	task := &model.GenerationTask{
		TaskID:         "task_1700000000000_deadbeef",
		ProviderJobIDs: []string{"provider-abc"},
		Status:         model.TaskStatusProcessing,
		AudioClips:     []model.Clip{},
		TotalExpected:  2,
		Lyrics:         "la la la",
		Metadata: model.TaskMetadata{
			SongTitle:     "A Song for Maya",
			Occasion:      "birthday",
			RecipientName: "Maya",
			Genre:         model.GenrePop,
			Mood:          model.MoodHappy,
			UserID:        userID,
		},
		StartTime:  now,
		LastUpdate: now,
	}
	if task.Metadata.UserID == "" {
		task.Metadata.GuestID = "g1"
	}
	if err := tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func runPoll(t *testing.T, w *PollWorker, taskID string) {
	t.Helper()
	payload, _ := json.Marshal(pollPayload{TaskID: taskID})
	if err := w.ProcessTask(context.Background(), asynq.NewTask(TaskTypePoll, payload)); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}
}

func TestPoll_HappyPathCompletes(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{success(client.StatusSuccess, "a", "b")}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(45, 1))

	task := seedTask(t, tasks, "u1")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.CompletedClips != 2 || len(got.AudioClips) != 2 {
		t.Errorf("clips = %d/%d", got.CompletedClips, len(got.AudioClips))
	}
	if provider.calls != 1 {
		t.Errorf("completion on the same iteration: expected 1 poll, got %d", provider.calls)
	}

	saved := songs.Songs()
	if len(saved) != 1 {
		t.Fatalf("expected 1 persisted song, got %d", len(saved))
	}
	if len(saved[0].AudioURLs) != 2 {
		t.Errorf("persisted audio urls = %v", saved[0].AudioURLs)
	}
	if got.Metadata.SongID != saved[0].ID {
		t.Errorf("song id not recorded on task: %q", got.Metadata.SongID)
	}
}

func TestPoll_DedupAcrossIterations(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{
		success(client.StatusFirstSuccess, "a"),
		success(client.StatusSuccess, "a", "b"),
	}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(10, 1))

	task := seedTask(t, tasks, "")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.AudioClips) != 2 {
		t.Fatalf("expected 2 unique clips, got %d", len(got.AudioClips))
	}
	ids := map[string]bool{}
	for _, c := range got.AudioClips {
		if ids[c.ID] {
			t.Errorf("duplicate clip id %s", c.ID)
		}
		ids[c.ID] = true
	}
}

func TestPoll_TimeoutWithClipsIsPartial(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{
		success(client.StatusFirstSuccess, "a"),
		pending(),
	}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(3, 1))

	task := seedTask(t, tasks, "")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusPartial {
		t.Fatalf("status = %s, want PARTIAL", got.Status)
	}
	if len(got.AudioClips) != 1 {
		t.Errorf("clips = %d, want 1", len(got.AudioClips))
	}
	if got.Error != "" {
		t.Errorf("partial is a degrade policy, not an error: %q", got.Error)
	}
	if len(songs.Songs()) != 1 {
		t.Errorf("partial results must be persisted, got %d songs", len(songs.Songs()))
	}
}

func TestPoll_TimeoutWithoutClipsFails(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{pending()}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(3, 1))

	task := seedTask(t, tasks, "u1")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if !strings.Contains(got.Error, "timed out") {
		t.Errorf("error %q not timeout-classified", got.Error)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 poll attempts, got %d", provider.calls)
	}
	if len(songs.Songs()) != 0 {
		t.Error("failed task must not be persisted")
	}
	if used, _ := songs.FreeSongsUsed(context.Background(), "user:u1"); used != 0 {
		t.Errorf("failed task must not consume quota, used = %d", used)
	}
}

func TestPoll_UnrecognizedStatusTreatedAsPending(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	provider := &scriptedProvider{steps: []pollStep{
		{info: &client.RecordInfo{Status: "CREATE_TASK_FAILED??"}},
		success(client.StatusSuccess, "a", "b"),
	}}
	w := NewPollWorker(provider, tasks, store.NewMemorySongStore(), nil, nil, workerConfig(5, 1))

	task := seedTask(t, tasks, "")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusCompleted {
		t.Fatalf("unknown status must not end the loop, got %s", got.Status)
	}
}

func TestPoll_TerminalStability(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{success(client.StatusSuccess, "a", "b")}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(5, 1))

	task := seedTask(t, tasks, "u1")
	runPoll(t, w, task.TaskID)

	first, _ := tasks.Get(context.Background(), task.TaskID)

	// Redelivered job for the finished task: nothing may change.
	runPoll(t, w, task.TaskID)

	second, _ := tasks.Get(context.Background(), task.TaskID)
	if second.Status != first.Status || len(second.AudioClips) != len(first.AudioClips) {
		t.Errorf("terminal task mutated: %+v vs %+v", second, first)
	}
	if len(songs.Songs()) != 1 {
		t.Errorf("persistence ran more than once: %d songs", len(songs.Songs()))
	}
	if used, _ := songs.FreeSongsUsed(context.Background(), "user:u1"); used != 1 {
		t.Errorf("quota consumed more than once: %d", used)
	}
}

func TestPoll_AuthErrorFailsTask(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{
		{err: client.ErrProviderAuth},
	}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(10, 1))

	task := seedTask(t, tasks, "")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if provider.calls != 1 {
		t.Errorf("auth failure must not be retried by the loop: %d calls", provider.calls)
	}
	if len(songs.Songs()) != 0 {
		t.Error("failed task must not be persisted")
	}
}

func TestPoll_ErrorOnFinalAttemptFails(t *testing.T) {
	// A status-check error on the last attempt escapes the loop, so even
	// already-harvested clips end FAILED rather than PARTIAL.
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{
		success(client.StatusFirstSuccess, "a"),
		{err: errors.New("connection reset")},
	}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(2, 1))

	task := seedTask(t, tasks, "")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if len(songs.Songs()) != 0 {
		t.Error("exceptional exit must skip persistence")
	}
}

func TestPoll_QuotaIncrementMatchesGate(t *testing.T) {
	ctx := context.Background()

	// Guest: never counted.
	tasks := store.NewMemoryTaskStore()
	songs := store.NewMemorySongStore()
	provider := &scriptedProvider{steps: []pollStep{success(client.StatusSuccess, "a", "b")}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(5, 1))
	task := seedTask(t, tasks, "")
	runPoll(t, w, task.TaskID)
	if used, _ := songs.FreeSongsUsed(ctx, "guest:g1"); used != 0 {
		t.Errorf("guest quota = %d, want 0", used)
	}

	// User under a raised limit: increments until the limit, then stops.
	tasks = store.NewMemoryTaskStore()
	songs = store.NewMemorySongStore()
	songs.IncrementFreeSongs(ctx, "user:u1")
	songs.IncrementFreeSongs(ctx, "user:u1")
	provider = &scriptedProvider{steps: []pollStep{success(client.StatusSuccess, "a", "b")}}
	w = NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(5, 3))
	task = seedTask(t, tasks, "u1")
	runPoll(t, w, task.TaskID)
	if used, _ := songs.FreeSongsUsed(ctx, "user:u1"); used != 3 {
		t.Errorf("quota = %d, want 3 (2 used + this song under limit 3)", used)
	}
}

func TestPoll_PersistFailureRecordedOnTask(t *testing.T) {
	tasks := store.NewMemoryTaskStore()
	songs := &failingSongStore{store.NewMemorySongStore()}
	provider := &scriptedProvider{steps: []pollStep{success(client.StatusSuccess, "a", "b")}}
	w := NewPollWorker(provider, tasks, songs, nil, nil, workerConfig(5, 1))

	task := seedTask(t, tasks, "u1")
	runPoll(t, w, task.TaskID)

	got, _ := tasks.Get(context.Background(), task.TaskID)
	if got.Status != model.TaskStatusCompleted {
		t.Fatalf("persistence failure must not change the terminal status: %s", got.Status)
	}
	if got.Metadata.PersistError == "" {
		t.Error("save failure must be recorded on task metadata")
	}
}

func TestPoll_UnknownTaskDropsJob(t *testing.T) {
	w := NewPollWorker(&scriptedProvider{steps: []pollStep{pending()}}, store.NewMemoryTaskStore(), store.NewMemorySongStore(), nil, nil, workerConfig(3, 1))
	payload, _ := json.Marshal(pollPayload{TaskID: "task_gone"})
	if err := w.ProcessTask(context.Background(), asynq.NewTask(TaskTypePoll, payload)); err != nil {
		t.Fatalf("unknown task must resolve the job, got %v", err)
	}
}

func TestExtractClips_FallbackIDs(t *testing.T) {
	resp := &client.RecordResponse{SunoData: []client.SunoClip{
		{Title: "no id", AudioURL: "https://cdn/a.mp3"},
		{ID: "real", SourceAudioURL: "https://cdn/b.mp3"},
		{ID: "no-audio"},
	}}
	clips := extractClips(resp)
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips (one skipped for missing audio), got %d", len(clips))
	}
	if clips[0].ID != "clip_0_0" {
		t.Errorf("synthesized id = %q", clips[0].ID)
	}
	if clips[1].AudioURL != "https://cdn/b.mp3" {
		t.Errorf("source url fallback = %q", clips[1].AudioURL)
	}
}
