package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/tunegift/api/internal/client"
	"github.com/tunegift/api/internal/model"
)

// LyricsService writes personalized song lyrics with an AI text model.
type LyricsService struct {
	aiClient *client.OpenAIClient
}

// NewLyricsService creates a new lyrics service
func NewLyricsService(aiClient *client.OpenAIClient) *LyricsService {
	return &LyricsService{aiClient: aiClient}
}

// Generate produces a song title and lyrics for the request. Falls back to
// a deterministic template when the AI client is not configured, so the
// rest of the pipeline stays testable without credentials.
func (s *LyricsService) Generate(ctx context.Context, req *model.GenerateRequest) (title, lyrics string, err error) {
	if s.aiClient == nil || !s.aiClient.IsConfigured() {
		return s.generateMock(req)
	}

	reply, err := s.aiClient.ChatCompletion(ctx, s.buildSystemPrompt(), s.buildUserPrompt(req))
	if err != nil {
		return "", "", fmt.Errorf("AI lyrics generation failed: %w", err)
	}

	title, lyrics = parseReply(reply)
	if lyrics == "" {
		return "", "", fmt.Errorf("AI reply contained no lyrics")
	}
	if title == "" {
		title = defaultTitle(req)
	}
	return title, lyrics, nil
}

func (s *LyricsService) buildSystemPrompt() string {
	return "You are a professional songwriter. Write warm, singable lyrics " +
		"for a personalized gift song. Reply with a line starting with " +
		"\"TITLE:\" followed by the song title, then the full lyrics with " +
		"[Verse] and [Chorus] section markers."
}

func (s *LyricsService) buildUserPrompt(req *model.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s %s song for %s (%s of the sender",
		req.Mood, req.Genre, req.RecipientName, req.Relationship)
	if req.SenderName != "" {
		fmt.Fprintf(&b, ", %s", req.SenderName)
	}
	fmt.Fprintf(&b, "). Occasion: %s.", req.Occasion)
	if req.Tempo != "" {
		fmt.Fprintf(&b, " Tempo: %s.", req.Tempo)
	}
	return b.String()
}

// parseReply splits a "TITLE: ..." header off the lyrics body.
func parseReply(reply string) (title, lyrics string) {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	body := lines
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "TITLE:"); ok {
			title = strings.TrimSpace(rest)
			body = lines[i+1:]
			break
		}
	}
	return title, strings.TrimSpace(strings.Join(body, "\n"))
}

func defaultTitle(req *model.GenerateRequest) string {
	return fmt.Sprintf("A Song for %s", req.RecipientName)
}

func (s *LyricsService) generateMock(req *model.GenerateRequest) (string, string, error) {
	lyrics := fmt.Sprintf(`[Verse]
This one's for %s, on your %s day
From your %s, with words we want to say
Every memory shining, every mile we came through

[Chorus]
Here's a song, just for you
%s, this melody is true
Through the years, come what may
This song is yours today`,
		req.RecipientName, req.Occasion, req.Relationship, req.RecipientName)

	return defaultTitle(req), lyrics, nil
}
