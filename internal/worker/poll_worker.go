package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/tunegift/api/internal/client"
	"github.com/tunegift/api/internal/config"
	"github.com/tunegift/api/internal/model"
	"github.com/tunegift/api/internal/store"
	"github.com/tunegift/api/internal/websocket"
)

const (
	TaskTypePoll    = "generation:poll"
	QueueGeneration = "generation"
)

// errAlreadyTerminal aborts a store update racing a terminal transition.
var errAlreadyTerminal = errors.New("task already terminal")

type pollPayload struct {
	TaskID string `json:"taskId"`
}

// Enqueuer submits poll jobs to the generation queue.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(asynqClient *asynq.Client) *Enqueuer {
	return &Enqueuer{client: asynqClient}
}

// EnqueuePoll schedules the background poll for a registered task.
// MaxRetry is 0: the poll loop does its own bounded retrying, and a second
// delivery of an exhausted loop would only re-walk a terminal task.
func (e *Enqueuer) EnqueuePoll(ctx context.Context, taskID string) error {
	payload, err := json.Marshal(pollPayload{TaskID: taskID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypePoll, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueGeneration),
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
	)
	return err
}

// PollWorker converges a PROCESSING task to a terminal state by polling the
// provider, merging discovered clips, and persisting the result once.
type PollWorker struct {
	provider client.MusicProvider
	tasks    store.TaskStore
	songs    store.SongStore
	storage  client.StorageClient
	hub      *websocket.Hub
	cfg      *config.Config
}

func NewPollWorker(
	provider client.MusicProvider,
	tasks store.TaskStore,
	songs store.SongStore,
	storage client.StorageClient,
	hub *websocket.Hub,
	cfg *config.Config,
) *PollWorker {
	return &PollWorker{
		provider: provider,
		tasks:    tasks,
		songs:    songs,
		storage:  storage,
		hub:      hub,
		cfg:      cfg,
	}
}

// ProcessTask handles one poll job. Errors never propagate past this
// boundary as retryable asynq failures: any escape from the loop marks the
// task FAILED and resolves the job.
func (w *PollWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload pollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal poll payload: %w", err)
	}
	taskID := payload.TaskID

	task, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		log.Printf("[Poller] task %s not in store, dropping job: %v", taskID, err)
		return nil
	}
	if task.Status.Terminal() {
		// Redelivered job for a finished task. Nothing to do.
		return nil
	}

	log.Printf("[Poller] task %s: polling provider job(s) %v", taskID, task.ProviderJobIDs)

	if err := w.poll(ctx, task); err != nil {
		log.Printf("[Poller] task %s failed: %v", taskID, err)
		w.fail(ctx, taskID, err.Error())
	}
	return nil
}

// poll runs the bounded status loop. It returns nil once the task reached a
// terminal state itself; a returned error means the caller must mark FAILED.
func (w *PollWorker) poll(ctx context.Context, task *model.GenerationTask) error {
	taskID := task.TaskID
	providerJobID := task.ProviderJobIDs[0]

	// Grace period before the first check; the provider never has results
	// this early anyway.
	if err := sleep(ctx, w.cfg.Poll.InitialDelay); err != nil {
		return err
	}

	maxAttempts := w.cfg.Poll.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current, err := w.tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return nil
		}

		info, err := w.provider.RecordInfo(ctx, providerJobID)
		if err != nil {
			if errors.Is(err, client.ErrProviderAuth) {
				return err
			}
			log.Printf("[Poller] task %s attempt %d/%d: status check failed: %v", taskID, attempt, maxAttempts, err)
			if attempt == maxAttempts {
				return err
			}
		} else {
			done, err := w.handleStatus(ctx, taskID, attempt, info)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, w.cfg.Poll.Interval); err != nil {
				return err
			}
		}
	}

	return w.resolveTimeout(ctx, taskID)
}

// handleStatus applies one provider status reply. Returns done=true when
// the task reached COMPLETED.
func (w *PollWorker) handleStatus(ctx context.Context, taskID string, attempt int, info *client.RecordInfo) (bool, error) {
	switch info.Status {
	case client.StatusSuccess, client.StatusFirstSuccess:
		if info.Response == nil {
			return false, nil
		}

		clips := extractClips(info.Response)
		updated, err := w.tasks.Update(ctx, taskID, func(t *model.GenerationTask) error {
			if t.Status.Terminal() {
				return errAlreadyTerminal
			}
			t.AddClips(clips)
			t.LastUpdate = time.Now()
			return nil
		})
		if err != nil {
			if errors.Is(err, errAlreadyTerminal) {
				return true, nil
			}
			return false, err
		}

		w.broadcastProgress(updated)

		if updated.CompletedClips >= updated.TotalExpected {
			return true, w.finish(ctx, taskID, model.TaskStatusCompleted)
		}

	case client.StatusPending, client.StatusProcessing:
		// Still generating.

	default:
		log.Printf("[Poller] task %s attempt %d: unrecognized provider status %q, treating as pending", taskID, attempt, info.Status)
	}
	return false, nil
}

// resolveTimeout decides the terminal state after the attempt budget is
// spent: whatever clips arrived are accepted as PARTIAL, none means FAILED.
func (w *PollWorker) resolveTimeout(ctx context.Context, taskID string) error {
	task, err := w.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}

	if len(task.AudioClips) > 0 {
		log.Printf("[Poller] task %s: poll budget spent with %d/%d clips, accepting partial result", taskID, len(task.AudioClips), task.TotalExpected)
		return w.finish(ctx, taskID, model.TaskStatusPartial)
	}

	w.fail(ctx, taskID, fmt.Sprintf("music generation timed out after %d attempts with no clips", w.cfg.Poll.MaxAttempts))
	return nil
}

// finish moves the task to COMPLETED or PARTIAL and runs the persistence
// side effect. The terminal guard inside Update makes both the transition
// and the side effect fire at most once.
func (w *PollWorker) finish(ctx context.Context, taskID string, status model.TaskStatus) error {
	updated, err := w.tasks.Update(ctx, taskID, func(t *model.GenerationTask) error {
		if t.Status.Terminal() {
			return errAlreadyTerminal
		}
		t.Status = status
		t.LastUpdate = time.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyTerminal) {
			return nil
		}
		return err
	}

	log.Printf("[Poller] task %s: %s with %d/%d clips", taskID, status, updated.CompletedClips, updated.TotalExpected)
	w.persist(ctx, updated)
	w.broadcastComplete(updated)
	return nil
}

// fail marks the task FAILED without persisting, unless it already went
// terminal through another path.
func (w *PollWorker) fail(ctx context.Context, taskID, errMsg string) {
	_, err := w.tasks.Update(ctx, taskID, func(t *model.GenerationTask) error {
		if t.Status.Terminal() {
			return errAlreadyTerminal
		}
		t.Status = model.TaskStatusFailed
		t.Error = errMsg
		t.LastUpdate = time.Now()
		return nil
	})
	if err != nil && !errors.Is(err, errAlreadyTerminal) {
		log.Printf("[Poller] task %s: failed to record failure: %v", taskID, err)
		return
	}
	if w.hub != nil {
		w.hub.BroadcastError(taskID, "GENERATION_FAILED", errMsg)
	}
}

// persist writes the song record and settles the free-quota counter.
// Best-effort by contract: the client already has its 200, so failures are
// recorded on the task and logged, never thrown.
func (w *PollWorker) persist(ctx context.Context, task *model.GenerationTask) {
	if len(task.AudioClips) == 0 {
		log.Printf("[Poller] task %s: no clips to persist, skipping", task.TaskID)
		return
	}

	audioURLs := w.archiveClips(ctx, task)

	song := &model.Song{
		ID:            uuid.New().String(),
		Title:         task.Metadata.SongTitle,
		Lyrics:        task.Lyrics,
		Prompt:        fmt.Sprintf("%s song for %s (%s)", task.Metadata.Genre, task.Metadata.RecipientName, task.Metadata.Occasion),
		Genre:         task.Metadata.Genre,
		Mood:          task.Metadata.Mood,
		AudioURLs:     audioURLs,
		ImageURL:      task.AudioClips[0].ImageURL,
		ProviderJobID: task.ProviderJobIDs[0],
		UserID:        task.Metadata.UserID,
		GuestID:       task.Metadata.GuestID,
		CreatedAt:     time.Now(),
	}

	if err := w.songs.CreateSong(ctx, song); err != nil {
		log.Printf("[Poller] task %s: song save failed: %v", task.TaskID, err)
		_, uerr := w.tasks.Update(ctx, task.TaskID, func(t *model.GenerationTask) error {
			t.Metadata.PersistError = err.Error()
			return nil
		})
		if uerr != nil {
			log.Printf("[Poller] task %s: failed to record save error: %v", task.TaskID, uerr)
		}
		return
	}

	_, err := w.tasks.Update(ctx, task.TaskID, func(t *model.GenerationTask) error {
		t.Metadata.SongID = song.ID
		return nil
	})
	if err != nil {
		log.Printf("[Poller] task %s: failed to record song id: %v", task.TaskID, err)
	}

	w.consumeQuota(ctx, task)
}

// consumeQuota counts the song against the free tier for authenticated
// users. PARTIAL results consume quota too. Gate and increment derive from
// the same FreeSongLimit value.
func (w *PollWorker) consumeQuota(ctx context.Context, task *model.GenerationTask) {
	if task.Metadata.UserID == "" {
		return
	}
	key := model.Identity{UserID: task.Metadata.UserID}.Key()

	used, err := w.songs.FreeSongsUsed(ctx, key)
	if err != nil {
		log.Printf("[Poller] task %s: quota read failed: %v", task.TaskID, err)
		return
	}
	if used >= w.cfg.Paywall.FreeSongLimit {
		return
	}
	if err := w.songs.IncrementFreeSongs(ctx, key); err != nil {
		log.Printf("[Poller] task %s: quota increment failed: %v", task.TaskID, err)
	}
}

// archiveClips mirrors clip audio into the bucket when storage is
// configured; provider URLs expire. Failures keep the provider URL.
func (w *PollWorker) archiveClips(ctx context.Context, task *model.GenerationTask) []string {
	urls := make([]string, 0, 2)
	for _, clip := range task.AudioClips {
		if len(urls) == 2 {
			break
		}
		url := clip.AudioURL
		if w.storage != nil {
			key := fmt.Sprintf("songs/%s/%s.mp3", task.TaskID, clip.ID)
			archived, err := w.storage.ArchiveFromURL(ctx, key, clip.AudioURL)
			if err != nil {
				log.Printf("[Poller] task %s: archive of clip %s failed, keeping provider URL: %v", task.TaskID, clip.ID, err)
			} else {
				url = archived
			}
		}
		urls = append(urls, url)
	}
	return urls
}

// extractClips flattens the provider payload, synthesizing ids for clips
// the provider returned without one so dedup still has a stable key.
func extractClips(resp *client.RecordResponse) []model.Clip {
	clips := make([]model.Clip, 0, len(resp.SunoData))
	for i, sc := range resp.SunoData {
		audioURL := sc.BestAudioURL()
		if audioURL == "" {
			continue
		}
		id := sc.ID
		if id == "" {
			id = fmt.Sprintf("clip_0_%d", i)
		}
		clips = append(clips, model.Clip{
			ID:       id,
			Title:    sc.Title,
			AudioURL: audioURL,
			ImageURL: sc.BestImageURL(),
		})
	}
	return clips
}

func (w *PollWorker) broadcastProgress(task *model.GenerationTask) {
	if w.hub == nil {
		return
	}
	w.hub.BroadcastProgress(task.TaskID, task.Status, task.CompletedClips, task.TotalExpected)
}

func (w *PollWorker) broadcastComplete(task *model.GenerationTask) {
	if w.hub == nil {
		return
	}
	w.hub.BroadcastComplete(task.TaskID, task.Status, task.AudioClips)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
