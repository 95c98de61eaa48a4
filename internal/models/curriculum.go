package models

import "gorm.io/datatypes"

// Lesson types.
const (
	LessonVocabulary = "VOCABULARY"
	LessonGrammar    = "GRAMMAR"
	LessonListening  = "LISTENING"
	LessonReading    = "READING"
	LessonSpeaking   = "SPEAKING"
	LessonWriting    = "WRITING"
	LessonReview     = "REVIEW"
)

// Unit groups lessons. Lessons holds the ids of its active lessons in order
// of attachment and is maintained in the same transaction as every lesson
// create, delete, restore or move.
type Unit struct {
	BaseModel
	Audit
	SoftDelete

	Name        string                      `gorm:"not null" json:"name"`
	Slug        string                      `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Description string                      `json:"description,omitempty"`
	Level       string                      `gorm:"size:4" json:"level,omitempty"`
	OrderIndex  int                         `gorm:"not null;default:0;index" json:"order_index"`
	Lessons     datatypes.JSONSlice[string] `json:"lessons"`
}

// HasLesson reports whether id is linked.
func (u *Unit) HasLesson(id string) bool {
	for _, l := range u.Lessons {
		if l == id {
			return true
		}
	}
	return false
}

// Lesson belongs to exactly one unit.
type Lesson struct {
	BaseModel
	Audit
	SoftDelete

	Title       string         `gorm:"not null" json:"title"`
	Slug        string         `gorm:"uniqueIndex;size:191;not null" json:"slug"`
	Description string         `json:"description,omitempty"`
	Type        string         `gorm:"size:16;not null" json:"type"`
	Level       string         `gorm:"size:4" json:"level,omitempty"`
	OrderIndex  int            `gorm:"not null;default:0" json:"order_index"`
	UnitID      string         `gorm:"size:36;not null;index" json:"unit_id"`
	Topic       string         `json:"topic,omitempty"`
	Flow        datatypes.JSON `json:"flow,omitempty"`
}
