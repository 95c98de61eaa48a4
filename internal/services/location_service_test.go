package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func newLocationFixture(t *testing.T) *LocationService {
	t.Helper()
	svc, err := NewLocationService(openServiceTestDB(t), newTestAside())
	require.NoError(t, err)
	return svc
}

func TestLocationHierarchy(t *testing.T) {
	svc := newLocationFixture(t)
	ctx := context.Background()

	province, err := svc.CreateProvince(ctx, nil, ProvinceInput{Code: "hn", Name: "Ha Noi"}, "")
	require.NoError(t, err)
	require.Equal(t, "HN", province.Code)
	require.Equal(t, "VN", province.CountryCode)

	_, err = svc.CreateProvince(ctx, nil, ProvinceInput{Code: "HN", Name: "Again"}, "")
	require.True(t, apperrors.Is(err, apperrors.ErrConflict))

	_, err = svc.CreateDistrict(ctx, nil, DistrictInput{Code: "BD", Name: "Ba Dinh", ProvinceCode: "HCM"}, "")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	district, err := svc.CreateDistrict(ctx, nil, DistrictInput{Code: "BD", Name: "Ba Dinh", ProvinceCode: "HN"}, "")
	require.NoError(t, err)

	school, err := svc.CreateSchool(ctx, nil, SchoolInput{Code: "THCS1", Name: "Secondary One", DistrictCode: district.Code}, "")
	require.NoError(t, err)
	require.Equal(t, "HN", school.ProvinceCode)

	class, err := svc.CreateClass(ctx, nil, ClassInput{Code: "6A", Name: "6A", Grade: "6", SchoolID: school.ID}, "")
	require.NoError(t, err)

	page, err := svc.ListClasses(ctx, LocationFilter{Parent: school.ID}, cache.Query{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.Equal(t, class.ID, page.Data[0].ID)

	_, err = svc.CreateClass(ctx, nil, ClassInput{Code: "6B", Name: "6B", SchoolID: "bogus"}, "")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestLocationUpdateAndSoftDelete(t *testing.T) {
	svc := newLocationFixture(t)
	ctx := context.Background()

	province, err := svc.CreateProvince(ctx, nil, ProvinceInput{Code: "DN", Name: "Da Nang"}, "")
	require.NoError(t, err)

	name := "Thanh pho Da Nang"
	updated, err := svc.UpdateProvince(ctx, nil, province.ID, LocationUpdate{Name: &name}, "")
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)

	empty := "  "
	_, err = svc.UpdateProvince(ctx, nil, province.ID, LocationUpdate{Name: &empty}, "")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	require.NoError(t, svc.SetProvinceActive(ctx, nil, province.ID, false, ""))
	require.True(t, apperrors.Is(svc.SetProvinceActive(ctx, nil, province.ID, false, ""), apperrors.ErrNotFound))

	_, err = svc.GetProvince(ctx, province.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = svc.CreateDistrict(ctx, nil, DistrictInput{Code: "HC", Name: "Hai Chau", ProvinceCode: "DN"}, "")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, svc.SetProvinceActive(ctx, nil, province.ID, true, ""))
	got, err := svc.GetProvince(ctx, province.ID)
	require.NoError(t, err)
	require.Equal(t, name, got.Name)
}
