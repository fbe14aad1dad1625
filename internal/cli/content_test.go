package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSampleQuestionsAreUsable(t *testing.T) {
	questions, err := loadSampleQuestions()
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	graded := 0
	ids := map[string]bool{}
	for _, q := range questions {
		if ids[q.ID] {
			t.Fatalf("duplicate id %s", q.ID)
		}
		ids[q.ID] = true
		if q.Graded() {
			graded++
		}
	}
	if graded < 10 {
		t.Fatalf("sample bank must cover the default question count, has %d graded", graded)
	}
}

func TestLoadQuestionsFileRejectsMissingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, []byte(`[{"moduleId":"m1","text":"no id"}]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadQuestionsFile(path); err == nil {
		t.Fatalf("expected error for question without id")
	}
}
