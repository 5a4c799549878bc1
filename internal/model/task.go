package model

import "time"

// Clip is one synthesized audio result. A task usually produces two
// alternate renditions of the same song.
type Clip struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	AudioURL string `json:"audio_url"`
	ImageURL string `json:"image_url,omitempty"`
}

// TaskMetadata carries request context through to persistence.
type TaskMetadata struct {
	SongTitle     string `json:"songTitle"`
	Occasion      string `json:"occasion"`
	RecipientName string `json:"recipientName"`
	Genre         Genre  `json:"genre"`
	Mood          Mood   `json:"mood"`
	UserID        string `json:"userId,omitempty"`
	GuestID       string `json:"guestId,omitempty"`
	PersistError  string `json:"persistError,omitempty"`
	SongID        string `json:"songId,omitempty"`
}

// GenerationTask tracks one music generation request from submission
// to a terminal state.
type GenerationTask struct {
	TaskID         string       `json:"taskId"`
	ProviderJobIDs []string     `json:"providerJobIds"`
	Status         TaskStatus   `json:"status"`
	AudioClips     []Clip       `json:"audioClips"`
	CompletedClips int          `json:"completedClips"`
	TotalExpected  int          `json:"totalExpected"`
	Lyrics         string       `json:"lyrics"`
	Metadata       TaskMetadata `json:"metadata"`
	StartTime      time.Time    `json:"startTime"`
	LastUpdate     time.Time    `json:"lastUpdate"`
	Error          string       `json:"error,omitempty"`
}

// AddClips appends clips the task has not seen before, keyed by clip ID,
// and returns how many were added. AudioClips never shrinks.
func (t *GenerationTask) AddClips(clips []Clip) int {
	seen := make(map[string]bool, len(t.AudioClips))
	for _, c := range t.AudioClips {
		seen[c.ID] = true
	}

	added := 0
	for _, c := range clips {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		t.AudioClips = append(t.AudioClips, c)
		added++
	}
	t.CompletedClips = len(t.AudioClips)
	return added
}

// Clone returns a deep copy so store readers never alias the clip slice.
func (t *GenerationTask) Clone() *GenerationTask {
	cp := *t
	cp.ProviderJobIDs = append([]string(nil), t.ProviderJobIDs...)
	cp.AudioClips = append([]Clip(nil), t.AudioClips...)
	return &cp
}

// Identity names the caller: an authenticated user or an anonymous guest.
type Identity struct {
	UserID  string
	GuestID string
}

func (i Identity) IsUser() bool {
	return i.UserID != ""
}

// Key returns the namespaced identifier used for quota and rate-limit counters.
func (i Identity) Key() string {
	if i.UserID != "" {
		return "user:" + i.UserID
	}
	if i.GuestID != "" {
		return "guest:" + i.GuestID
	}
	return ""
}
