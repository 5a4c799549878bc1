package model

// GenerateRequest is the song request form submitted by the client.
type GenerateRequest struct {
	Occasion        string          `json:"occasion" validate:"required,max=100"`
	RecipientName   string          `json:"recipientName" validate:"required,max=100"`
	Relationship    string          `json:"relationship" validate:"required,max=100"`
	SenderName      string          `json:"senderName" validate:"omitempty,max=100"`
	Genre           Genre           `json:"genre" validate:"required,oneof=pop rock hiphop rnb electronic jazz country folk latin reggae blues"`
	Mood            Mood            `json:"mood" validate:"required,oneof=happy romantic nostalgic playful heartfelt celebratory calm"`
	Tempo           Tempo           `json:"tempo" validate:"omitempty,oneof=slow medium fast"`
	VocalPreference VocalPreference `json:"vocalPreference" validate:"omitempty,oneof=male female any instrumental"`
	Lyrics          string          `json:"lyrics" validate:"omitempty,max=5000"`
	LyricsOnly      bool            `json:"lyricsOnly"`
}

// GenerateResponse is returned immediately on the music path; the client
// polls the status endpoint with the task ID from here on.
type GenerateResponse struct {
	Success       bool       `json:"success"`
	TaskID        string     `json:"taskId"`
	Status        TaskStatus `json:"status"`
	ExpectedClips int        `json:"expectedClips"`
}

// LyricsOnlyResponse is returned when the client only wants lyrics.
type LyricsOnlyResponse struct {
	Success   bool   `json:"success"`
	SongTitle string `json:"songTitle"`
	Lyrics    string `json:"lyrics"`
}

// StatusResponse is the polling view of a generation task.
type StatusResponse struct {
	Success        bool         `json:"success"`
	TaskID         string       `json:"taskId"`
	Status         TaskStatus   `json:"status"`
	AudioClips     []Clip       `json:"audioClips"`
	CompletedClips int          `json:"completedClips"`
	TotalExpected  int          `json:"totalExpected"`
	Lyrics         string       `json:"lyrics"`
	Metadata       TaskMetadata `json:"metadata"`
	ElapsedTime    int64        `json:"elapsedTime"` // seconds since submission
	Error          string       `json:"error,omitempty"`
}
