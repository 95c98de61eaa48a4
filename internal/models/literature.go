package models

import "gorm.io/datatypes"

// Literature is graded reading content.
type Literature struct {
	BaseModel
	Audit
	SoftDelete

	Title             string                      `gorm:"uniqueIndex;size:191;not null" json:"title"`
	Type              string                      `gorm:"size:16;not null" json:"type"`
	Level             string                      `gorm:"size:4" json:"level"`
	Topic             string                      `json:"topic,omitempty"`
	ContentEnglish    string                      `gorm:"type:text;not null" json:"content_english"`
	ContentVietnamese string                      `gorm:"type:text" json:"content_vietnamese,omitempty"`
	Vocabulary        datatypes.JSONSlice[string] `json:"vocabulary,omitempty"`
	GrammarPoints     datatypes.JSONSlice[string] `json:"grammar_points,omitempty"`
	AudioURL          string                      `json:"audio_url,omitempty"`
	ImageURL          string                      `json:"image_url,omitempty"`
	IsPublished       bool                        `gorm:"not null;default:false;index" json:"is_published"`
}
