package cli

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"study-room-service/internal/domain"
)

// sampleQuestions is the built-in question bank used when no Postgres is configured.
//
//go:embed sample_questions.json
var sampleQuestions []byte

func loadSampleQuestions() ([]domain.Question, error) {
	return decodeQuestions(sampleQuestions)
}

func loadQuestionsFile(path string) ([]domain.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeQuestions(data)
}

func decodeQuestions(data []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	for i, q := range questions {
		if q.ID == "" || q.ModuleID == "" {
			return nil, fmt.Errorf("question %d: id and moduleId are required", i)
		}
	}
	return questions, nil
}
