package models

import "time"

// Competition statuses.
const (
	CompetitionUpcoming = "UPCOMING"
	CompetitionOngoing  = "ONGOING"
	CompetitionEnded    = "ENDED"
)

// Competition is a timed contest learners can join.
type Competition struct {
	BaseModel
	Audit
	SoftDelete

	Name              string    `gorm:"not null" json:"name"`
	Description       string    `json:"description,omitempty"`
	Type              string    `gorm:"size:16;not null" json:"type"`
	Subject           string    `json:"subject,omitempty"`
	StartTime         time.Time `gorm:"index" json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	MaxParticipants   int       `gorm:"not null;default:0" json:"max_participants"`
	TotalParticipants int       `gorm:"not null;default:0" json:"total_participants"`
	Prize             string    `json:"prize,omitempty"`
	BadgeID           *string   `gorm:"size:36" json:"badge_id,omitempty"`
	IsPublished       bool      `gorm:"not null;default:false" json:"is_published"`
}

// Status derives the lifecycle state at now.
func (c *Competition) Status(now time.Time) string {
	switch {
	case now.Before(c.StartTime):
		return CompetitionUpcoming
	case now.Before(c.EndTime):
		return CompetitionOngoing
	default:
		return CompetitionEnded
	}
}

// CompetitionParticipant records a user joining a competition.
type CompetitionParticipant struct {
	CompetitionID string    `gorm:"primaryKey;size:36" json:"competition_id"`
	UserID        string    `gorm:"primaryKey;size:36" json:"user_id"`
	JoinedAt      time.Time `json:"joined_at"`
	Score         *float64  `json:"score,omitempty"`
}
