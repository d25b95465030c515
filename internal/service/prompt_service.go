package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
)

const promptSystem = `You are a video director writing prompts for an AI video generator.
Given a theme, write exactly two scene descriptions that together tell a short story:
an opening scene and a closing scene. Each description is one vivid sentence of
10 to 30 words, concrete and visual, no camera jargon.
Respond with exactly two lines, one scene per line, nothing else.`

// PromptService expands a theme into the two scene prompts of a composite
// video. Falls back to a deterministic template when the LLM is not
// configured or misbehaves, so a job can always be dispatched.
type PromptService struct {
	groqClient *client.GroqClient
}

func NewPromptService(groqClient *client.GroqClient) *PromptService {
	return &PromptService{groqClient: groqClient}
}

// GeneratePrompts returns exactly two non-empty scene prompts for the theme.
func (s *PromptService) GeneratePrompts(ctx context.Context, theme string) ([model.SlotCount]string, error) {
	var prompts [model.SlotCount]string
	if theme == "" {
		return prompts, fmt.Errorf("theme is required")
	}

	if s.groqClient == nil || !s.groqClient.IsConfigured() {
		log.Printf("Groq not configured, using template prompts for theme %q", theme)
		return templatePrompts(theme), nil
	}

	content, err := s.groqClient.ChatCompletion(ctx, promptSystem, theme)
	if err != nil {
		log.Printf("Prompt generation failed, using template prompts: %v", err)
		return templatePrompts(theme), nil
	}

	lines := splitScenes(content)
	if len(lines) < model.SlotCount {
		log.Printf("Expected %d scenes, got %d, using template prompts", model.SlotCount, len(lines))
		return templatePrompts(theme), nil
	}

	copy(prompts[:], lines)
	return prompts, nil
}

// splitScenes extracts non-empty lines, stripping list markers the model
// sometimes adds despite instructions.
func splitScenes(content string) []string {
	var scenes []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line == "" {
			continue
		}
		scenes = append(scenes, line)
	}
	return scenes
}

func templatePrompts(theme string) [model.SlotCount]string {
	return [model.SlotCount]string{
		fmt.Sprintf("An establishing opening scene of %s, wide view, warm natural light", theme),
		fmt.Sprintf("A dramatic closing scene of %s, close up, golden hour light fading out", theme),
	}
}
