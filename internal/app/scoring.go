package app

import (
	"math"
	"sort"

	"study-room-service/internal/domain"
)

// ScoreAnswers counts answers whose chosen choice is correct. It always recomputes from the
// full answer map so a cached score can never drift.
func ScoreAnswers(answers map[int]string, questionIDs []string, questions map[string]domain.Question) int {
	score := 0
	for index, choiceID := range answers {
		if index < 0 || index >= len(questionIDs) {
			continue
		}
		q, ok := questions[questionIDs[index]]
		if !ok {
			continue
		}
		if choice, ok := q.Choice(choiceID); ok && choice.IsCorrect {
			score++
		}
	}
	return score
}

// Rank orders participants by score, highest first. Equal scores share a rank
// (1, 1, 3, ...); inside a tie entries are listed by display name, then user id.
func Rank(participants []domain.Participant, total int) []domain.LeaderboardEntry {
	sorted := make([]domain.Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if sorted[i].DisplayName != sorted[j].DisplayName {
			return sorted[i].DisplayName < sorted[j].DisplayName
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 && p.Score == sorted[i-1].Score {
			rank = entries[i-1].Rank
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        rank,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Percentage:  Percentage(p.Score, total),
		})
	}
	return entries
}

// Percentage is round(100*score/total); a zero total yields 0.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(total)))
}

// Progress returns how many participants have answered the question at index, out of all.
func Progress(participants []domain.Participant, index int) (answered, total int) {
	for _, p := range participants {
		if p.HasAnswered(index) {
			answered++
		}
	}
	return answered, len(participants)
}

func indexQuestions(questions []domain.Question) map[string]domain.Question {
	out := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		out[q.ID] = q
	}
	return out
}
