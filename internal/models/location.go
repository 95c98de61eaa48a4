package models

// Province is a first level administrative unit.
type Province struct {
	BaseModel
	Audit
	SoftDelete

	Code        string `gorm:"uniqueIndex;size:16;not null" json:"code"`
	Name        string `gorm:"not null" json:"name"`
	CountryCode string `gorm:"size:8;not null;default:VN" json:"country_code"`
}

// District belongs to a province by code.
type District struct {
	BaseModel
	Audit
	SoftDelete

	Code         string `gorm:"uniqueIndex;size:16;not null" json:"code"`
	Name         string `gorm:"not null" json:"name"`
	ProvinceCode string `gorm:"size:16;not null;index" json:"province_code"`
}

// School belongs to a district.
type School struct {
	BaseModel
	Audit
	SoftDelete

	Code         string `gorm:"uniqueIndex;size:32;not null" json:"code"`
	Name         string `gorm:"not null" json:"name"`
	Level        string `gorm:"size:32" json:"level"`
	DistrictCode string `gorm:"size:16;not null;index" json:"district_code"`
	ProvinceCode string `gorm:"size:16;not null;index" json:"province_code"`
}

// Class is a school class.
type Class struct {
	BaseModel
	Audit
	SoftDelete

	Code     string `gorm:"uniqueIndex;size:32;not null" json:"code"`
	Name     string `gorm:"not null" json:"name"`
	Grade    string `gorm:"size:16" json:"grade"`
	SchoolID string `gorm:"size:36;not null;index" json:"school_id"`
}
