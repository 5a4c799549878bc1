package model

// Genre types
type Genre string

const (
	GenrePop        Genre = "pop"
	GenreRock       Genre = "rock"
	GenreHiphop     Genre = "hiphop"
	GenreRnb        Genre = "rnb"
	GenreElectronic Genre = "electronic"
	GenreJazz       Genre = "jazz"
	GenreCountry    Genre = "country"
	GenreFolk       Genre = "folk"
	GenreLatin      Genre = "latin"
	GenreReggae     Genre = "reggae"
	GenreBlues      Genre = "blues"
)

var ValidGenres = []Genre{
	GenrePop, GenreRock, GenreHiphop, GenreRnb, GenreElectronic,
	GenreJazz, GenreCountry, GenreFolk, GenreLatin, GenreReggae, GenreBlues,
}

// Moods
type Mood string

const (
	MoodHappy      Mood = "happy"
	MoodRomantic   Mood = "romantic"
	MoodNostalgic  Mood = "nostalgic"
	MoodPlayful    Mood = "playful"
	MoodHeartfelt  Mood = "heartfelt"
	MoodCelebatory Mood = "celebratory"
	MoodCalm       Mood = "calm"
)

// Tempo
type Tempo string

const (
	TempoSlow   Tempo = "slow"
	TempoMedium Tempo = "medium"
	TempoFast   Tempo = "fast"
)

// Vocal preference
type VocalPreference string

const (
	VocalMale         VocalPreference = "male"
	VocalFemale       VocalPreference = "female"
	VocalAny          VocalPreference = "any"
	VocalInstrumental VocalPreference = "instrumental"
)

// Task status
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusPartial    TaskStatus = "PARTIAL"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusPartial || s == TaskStatusFailed
}
