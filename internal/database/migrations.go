package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Token{},
		&models.InvitationCode{},
		&models.HistoryInvitation{},
		&models.Province{},
		&models.District{},
		&models.School{},
		&models.Class{},
		&models.Unit{},
		&models.Lesson{},
		&models.UnitProgress{},
		&models.LessonProgress{},
		&models.Progress{},
		&models.Package{},
		&models.Purchase{},
		&models.Subscription{},
		&models.Literature{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupMessage{},
		&models.GroupMessageRead{},
		&models.Assignment{},
		&models.Submission{},
		&models.Badge{},
		&models.UserBadge{},
		&models.Support{},
		&models.Feedback{},
		&models.Competition{},
		&models.CompetitionParticipant{},
		&models.CacheEntry{},
	)
}

// SeedData populates the default account packages.
func SeedData(db *gorm.DB) error {
	packages := []models.Package{
		{
			Name:         "Free",
			Type:         models.PackageFree,
			Description:  "Starter access to the first units",
			Price:        0,
			Currency:     "VND",
			DurationDays: 0,
		},
		{
			Name:         "Basic",
			Type:         models.PackageBasic,
			Description:  "All units and progress reports",
			Price:        99000,
			Currency:     "VND",
			DurationDays: 30,
		},
		{
			Name:         "Premium",
			Type:         models.PackagePremium,
			Description:  "Everything in Basic plus pronunciation practice and class groups",
			Price:        199000,
			Currency:     "VND",
			DurationDays: 30,
		},
	}

	for _, pkg := range packages {
		if err := db.Where(models.Package{Type: pkg.Type}).Attrs(pkg).FirstOrCreate(&models.Package{}).Error; err != nil {
			return err
		}
	}

	return nil
}
