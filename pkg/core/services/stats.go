package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/db"
)

// Stats is the dashboard summary of the participant pipeline. AverageTimeOutDays is the mean
// days since release over participants not yet graduated or ceased.
type Stats struct {
	Total              int                  `json:"total"`
	ByStatus           map[model.Status]int `json:"byStatus"`
	MenteesPerMentor   map[string]int       `json:"menteesPerMentor"`
	AverageTimeOutDays float64              `json:"averageTimeOutDays"`
	BridgeQueue        int                  `json:"bridgeQueue"`
	MentorQueue        int                  `json:"mentorQueue"`
	GeneratedAt        time.Time            `json:"generatedAt"`
}

// ParticipantStats summarises participants as of now
func ParticipantStats(participants []model.Participant, now time.Time) Stats {
	stats := Stats{
		Total:            len(participants),
		ByStatus:         make(map[model.Status]int, len(model.AllStatuses)),
		MenteesPerMentor: make(map[string]int),
		GeneratedAt:      now.UTC(),
	}
	for _, s := range model.AllStatuses {
		stats.ByStatus[s] = 0
	}

	active := 0
	totalTimeOut := 0
	for _, p := range participants {
		stats.ByStatus[p.Status]++

		if p.Status == model.StatusActiveMentorship {
			stats.MenteesPerMentor[p.AssignedMentor]++
		}
		if !p.Status.IsTerminal() {
			active++
			totalTimeOut += p.TimeOut(now)
		}
	}

	if active > 0 {
		stats.AverageTimeOutDays = float64(totalTimeOut) / float64(active)
	}
	stats.BridgeQueue = stats.ByStatus[model.StatusPendingBridge]
	stats.MentorQueue = stats.ByStatus[model.StatusPendingMentor]

	return stats
}

// LoadStats reads every participant and summarises them
func LoadStats(ctx context.Context, database db.ParticipantStore, now time.Time) (Stats, error) {
	participants, err := database.GetParticipants(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to fetch participants: %w", err)
	}
	return ParticipantStats(participants, now), nil
}
