package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// ProvinceInput creates a province.
type ProvinceInput struct {
	Code        string `json:"code" validate:"required,max=16"`
	Name        string `json:"name" validate:"required,max=128"`
	CountryCode string `json:"country_code" validate:"omitempty,max=8"`
}

// DistrictInput creates a district inside a province.
type DistrictInput struct {
	Code         string `json:"code" validate:"required,max=16"`
	Name         string `json:"name" validate:"required,max=128"`
	ProvinceCode string `json:"province_code" validate:"required,max=16"`
}

// SchoolInput creates a school inside a district.
type SchoolInput struct {
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=191"`
	Level        string `json:"level" validate:"omitempty,max=32"`
	DistrictCode string `json:"district_code" validate:"required,max=16"`
}

// ClassInput creates a class inside a school.
type ClassInput struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=128"`
	Grade    string `json:"grade" validate:"omitempty,max=16"`
	SchoolID string `json:"school_id" validate:"required"`
}

// LocationUpdate renames a location. Level and Grade only apply to schools
// and classes.
type LocationUpdate struct {
	Name  *string `json:"name" validate:"omitempty,max=191"`
	Level *string `json:"level" validate:"omitempty,max=32"`
	Grade *string `json:"grade" validate:"omitempty,max=16"`
}

// LocationFilter narrows location listings to one parent.
type LocationFilter struct {
	Parent string `form:"parent"`
	Search string `form:"search"`
}

// LocationService manages the province, district, school and class
// hierarchy.
type LocationService struct {
	db    *gorm.DB
	cache *cache.Aside
}

// NewLocationService constructs a LocationService.
func NewLocationService(db *gorm.DB, aside *cache.Aside) (*LocationService, error) {
	if db == nil {
		return nil, errors.New("location service: db is required")
	}
	return &LocationService{db: db, cache: aside}, nil
}

// CreateProvince adds a province with a unique code.
func (s *LocationService) CreateProvince(ctx context.Context, outer *database.Tx, input ProvinceInput, actorID string) (*models.Province, error) {
	code := normaliseLocationCode(input.Code)
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Province, error) {
		if err := uniqueLocationCode(tx.DB(), &models.Province{}, code, "Province"); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(input.Name)
		if code == "" || name == "" {
			return nil, apperrors.NewBadRequest("Code and name are required.")
		}
		country := strings.ToUpper(strings.TrimSpace(input.CountryCode))
		if country == "" {
			country = "VN"
		}
		rec := &models.Province{
			Audit:       models.Audit{CreatedBy: models.StringPtr(actorID)},
			Code:        code,
			Name:        name,
			CountryCode: country,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("location service: create province: %w", conflictOnUnique(err, "Province code already exists."))
		}
		s.cache.Invalidate(tx, collectionProvinces)
		return rec, nil
	})
}

// CreateDistrict adds a district to an active province.
func (s *LocationService) CreateDistrict(ctx context.Context, outer *database.Tx, input DistrictInput, actorID string) (*models.District, error) {
	code := normaliseLocationCode(input.Code)
	provinceCode := normaliseLocationCode(input.ProvinceCode)
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.District, error) {
		if _, err := findActiveByCode[models.Province](tx.DB(), provinceCode, "province"); err != nil {
			return nil, err
		}
		if err := uniqueLocationCode(tx.DB(), &models.District{}, code, "District"); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(input.Name)
		if code == "" || name == "" {
			return nil, apperrors.NewBadRequest("Code and name are required.")
		}
		rec := &models.District{
			Audit:        models.Audit{CreatedBy: models.StringPtr(actorID)},
			Code:         code,
			Name:         name,
			ProvinceCode: provinceCode,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("location service: create district: %w", conflictOnUnique(err, "District code already exists."))
		}
		s.cache.Invalidate(tx, collectionDistricts)
		return rec, nil
	})
}

// CreateSchool adds a school to an active district. The province is taken
// from the district.
func (s *LocationService) CreateSchool(ctx context.Context, outer *database.Tx, input SchoolInput, actorID string) (*models.School, error) {
	code := normaliseLocationCode(input.Code)
	districtCode := normaliseLocationCode(input.DistrictCode)
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.School, error) {
		district, err := findActiveByCode[models.District](tx.DB(), districtCode, "district")
		if err != nil {
			return nil, err
		}
		if err := uniqueLocationCode(tx.DB(), &models.School{}, code, "School"); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(input.Name)
		if code == "" || name == "" {
			return nil, apperrors.NewBadRequest("Code and name are required.")
		}
		rec := &models.School{
			Audit:        models.Audit{CreatedBy: models.StringPtr(actorID)},
			Code:         code,
			Name:         name,
			Level:        strings.TrimSpace(input.Level),
			DistrictCode: district.Code,
			ProvinceCode: district.ProvinceCode,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("location service: create school: %w", conflictOnUnique(err, "School code already exists."))
		}
		s.cache.Invalidate(tx, collectionSchools)
		return rec, nil
	})
}

// CreateClass adds a class to an active school.
func (s *LocationService) CreateClass(ctx context.Context, outer *database.Tx, input ClassInput, actorID string) (*models.Class, error) {
	code := normaliseLocationCode(input.Code)
	schoolID, err := parseID(input.SchoolID, "school")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Class, error) {
		if _, err := findActive[models.School](tx.DB(), schoolID, "school"); err != nil {
			return nil, err
		}
		if err := uniqueLocationCode(tx.DB(), &models.Class{}, code, "Class"); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(input.Name)
		if code == "" || name == "" {
			return nil, apperrors.NewBadRequest("Code and name are required.")
		}
		rec := &models.Class{
			Audit:    models.Audit{CreatedBy: models.StringPtr(actorID)},
			Code:     code,
			Name:     name,
			Grade:    strings.TrimSpace(input.Grade),
			SchoolID: schoolID,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("location service: create class: %w", conflictOnUnique(err, "Class code already exists."))
		}
		s.cache.Invalidate(tx, collectionClasses)
		return rec, nil
	})
}

// GetProvince returns an active province.
func (s *LocationService) GetProvince(ctx context.Context, id string) (*models.Province, error) {
	return getCached[models.Province](ensureContext(ctx), s.db, s.cache, collectionProvinces, id, "province")
}

// GetDistrict returns an active district.
func (s *LocationService) GetDistrict(ctx context.Context, id string) (*models.District, error) {
	return getCached[models.District](ensureContext(ctx), s.db, s.cache, collectionDistricts, id, "district")
}

// GetSchool returns an active school.
func (s *LocationService) GetSchool(ctx context.Context, id string) (*models.School, error) {
	return getCached[models.School](ensureContext(ctx), s.db, s.cache, collectionSchools, id, "school")
}

// GetClass returns an active class.
func (s *LocationService) GetClass(ctx context.Context, id string) (*models.Class, error) {
	return getCached[models.Class](ensureContext(ctx), s.db, s.cache, collectionClasses, id, "class")
}

// ListProvinces pages active provinces. Parent filters by country code.
func (s *LocationService) ListProvinces(ctx context.Context, filter LocationFilter, q cache.Query) (cache.Page[models.Province], error) {
	return listLocations[models.Province](ctx, s, collectionProvinces, "country_code", strings.ToUpper(strings.TrimSpace(filter.Parent)), filter.Search, q)
}

// ListDistricts pages active districts. Parent filters by province code.
func (s *LocationService) ListDistricts(ctx context.Context, filter LocationFilter, q cache.Query) (cache.Page[models.District], error) {
	return listLocations[models.District](ctx, s, collectionDistricts, "province_code", normaliseLocationCode(filter.Parent), filter.Search, q)
}

// ListSchools pages active schools. Parent filters by district code.
func (s *LocationService) ListSchools(ctx context.Context, filter LocationFilter, q cache.Query) (cache.Page[models.School], error) {
	return listLocations[models.School](ctx, s, collectionSchools, "district_code", normaliseLocationCode(filter.Parent), filter.Search, q)
}

// ListClasses pages active classes. Parent filters by school id.
func (s *LocationService) ListClasses(ctx context.Context, filter LocationFilter, q cache.Query) (cache.Page[models.Class], error) {
	return listLocations[models.Class](ctx, s, collectionClasses, "school_id", strings.TrimSpace(filter.Parent), filter.Search, q)
}

func listLocations[T any](ctx context.Context, s *LocationService, collection, parentColumn, parent, search string, q cache.Query) (cache.Page[T], error) {
	search = strings.ToLower(strings.TrimSpace(search))
	return listCached[T](ensureContext(ctx), s.db, s.cache, collection, "list",
		[]cache.Filter{cache.F(parentColumn, parent), cache.F("search", search)}, q,
		[]string{"created_at", "name", "code"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if parent != "" {
				db = db.Where(parentColumn+" = ?", parent)
			}
			if search != "" {
				db = db.Where("LOWER(name) LIKE ?", "%"+search+"%")
			}
			return db
		})
}

// UpdateProvince renames a province.
func (s *LocationService) UpdateProvince(ctx context.Context, outer *database.Tx, id string, input LocationUpdate, actorID string) (*models.Province, error) {
	return updateLocation[models.Province](ctx, s, outer, collectionProvinces, "province", id, input, actorID)
}

// UpdateDistrict renames a district.
func (s *LocationService) UpdateDistrict(ctx context.Context, outer *database.Tx, id string, input LocationUpdate, actorID string) (*models.District, error) {
	return updateLocation[models.District](ctx, s, outer, collectionDistricts, "district", id, input, actorID)
}

// UpdateSchool renames a school or changes its level.
func (s *LocationService) UpdateSchool(ctx context.Context, outer *database.Tx, id string, input LocationUpdate, actorID string) (*models.School, error) {
	input.Grade = nil
	return updateLocation[models.School](ctx, s, outer, collectionSchools, "school", id, input, actorID)
}

// UpdateClass renames a class or changes its grade.
func (s *LocationService) UpdateClass(ctx context.Context, outer *database.Tx, id string, input LocationUpdate, actorID string) (*models.Class, error) {
	input.Level = nil
	return updateLocation[models.Class](ctx, s, outer, collectionClasses, "class", id, input, actorID)
}

func updateLocation[T any](ctx context.Context, s *LocationService, outer *database.Tx, collection, label, rawID string, input LocationUpdate, actorID string) (*T, error) {
	id, err := parseID(rawID, label)
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*T, error) {
		rec, err := findActive[T](tx.DB(), id, label)
		if err != nil {
			return nil, err
		}
		updates := map[string]any{}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return nil, apperrors.NewBadRequest("Name cannot be empty.")
			}
			updates["name"] = name
		}
		if input.Level != nil {
			updates["level"] = strings.TrimSpace(*input.Level)
		}
		if input.Grade != nil {
			updates["grade"] = strings.TrimSpace(*input.Grade)
		}
		if len(updates) == 0 {
			return rec, nil
		}
		if actorID != "" {
			updates["updated_by"] = actorID
		}
		if err := tx.DB().Model(rec).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("location service: update %s: %w", label, err)
		}
		s.cache.Invalidate(tx, collection)
		return findByID[T](tx.DB(), id, label)
	})
}

// SetProvinceActive deletes or restores a province.
func (s *LocationService) SetProvinceActive(ctx context.Context, outer *database.Tx, id string, active bool, actorID string) error {
	return s.setLocationActive(ctx, outer, &models.Province{}, collectionProvinces, "province", id, active, actorID)
}

// SetDistrictActive deletes or restores a district.
func (s *LocationService) SetDistrictActive(ctx context.Context, outer *database.Tx, id string, active bool, actorID string) error {
	return s.setLocationActive(ctx, outer, &models.District{}, collectionDistricts, "district", id, active, actorID)
}

// SetSchoolActive deletes or restores a school.
func (s *LocationService) SetSchoolActive(ctx context.Context, outer *database.Tx, id string, active bool, actorID string) error {
	return s.setLocationActive(ctx, outer, &models.School{}, collectionSchools, "school", id, active, actorID)
}

// SetClassActive deletes or restores a class.
func (s *LocationService) SetClassActive(ctx context.Context, outer *database.Tx, id string, active bool, actorID string) error {
	return s.setLocationActive(ctx, outer, &models.Class{}, collectionClasses, "class", id, active, actorID)
}

func (s *LocationService) setLocationActive(ctx context.Context, outer *database.Tx, model any, collection, label, rawID string, active bool, actorID string) error {
	id, err := parseID(rawID, label)
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, model, id, active, actorID, label); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collection)
		return nil
	})
}

func normaliseLocationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func uniqueLocationCode(db *gorm.DB, model any, code, label string) error {
	if code == "" {
		return nil
	}
	taken, err := exists(db, model, "code = ?", code)
	if err != nil {
		return fmt.Errorf("location service: check %s code: %w", strings.ToLower(label), err)
	}
	if taken {
		return apperrors.NewConflict(label + " code already exists.")
	}
	return nil
}

func findActiveByCode[T any](db *gorm.DB, code, label string) (*T, error) {
	if code == "" {
		return nil, notFound(label)
	}
	var rec T
	err := db.Where("code = ? AND is_active = ?", code, true).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(label)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", label, err)
	}
	return &rec, nil
}
