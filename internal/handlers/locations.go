package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

// LocationHandler serves the province > district > school > class hierarchy.
type LocationHandler struct {
	service *services.LocationService
}

func NewLocationHandler(service *services.LocationService) *LocationHandler {
	return &LocationHandler{service: service}
}

type locationListQuery struct {
	cache.Query
	services.LocationFilter
}

func (h *LocationHandler) listQuery(c *gin.Context) (locationListQuery, bool) {
	var q locationListQuery
	return q, bindQuery(c, &q)
}

// POST /api/provinces
func (h *LocationHandler) CreateProvince(c *gin.Context) {
	var body services.ProvinceInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.service.CreateProvince(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// POST /api/districts
func (h *LocationHandler) CreateDistrict(c *gin.Context) {
	var body services.DistrictInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.service.CreateDistrict(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// POST /api/schools
func (h *LocationHandler) CreateSchool(c *gin.Context) {
	var body services.SchoolInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.service.CreateSchool(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// POST /api/classes
func (h *LocationHandler) CreateClass(c *gin.Context) {
	var body services.ClassInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.service.CreateClass(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/provinces/:id
func (h *LocationHandler) GetProvince(c *gin.Context) {
	rec, err := h.service.GetProvince(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, rec, err)
}

// GET /api/districts/:id
func (h *LocationHandler) GetDistrict(c *gin.Context) {
	rec, err := h.service.GetDistrict(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, rec, err)
}

// GET /api/schools/:id
func (h *LocationHandler) GetSchool(c *gin.Context) {
	rec, err := h.service.GetSchool(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, rec, err)
}

// GET /api/classes/:id
func (h *LocationHandler) GetClass(c *gin.Context) {
	rec, err := h.service.GetClass(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, rec, err)
}

// GET /api/provinces
func (h *LocationHandler) ListProvinces(c *gin.Context) {
	if q, ok := h.listQuery(c); ok {
		page, err := h.service.ListProvinces(requestContext(c), q.LocationFilter, q.Query)
		respondPage(c, page, err)
	}
}

// GET /api/districts?parent=<province code>
func (h *LocationHandler) ListDistricts(c *gin.Context) {
	if q, ok := h.listQuery(c); ok {
		page, err := h.service.ListDistricts(requestContext(c), q.LocationFilter, q.Query)
		respondPage(c, page, err)
	}
}

// GET /api/schools?parent=<district code>
func (h *LocationHandler) ListSchools(c *gin.Context) {
	if q, ok := h.listQuery(c); ok {
		page, err := h.service.ListSchools(requestContext(c), q.LocationFilter, q.Query)
		respondPage(c, page, err)
	}
}

// GET /api/classes?parent=<school id>
func (h *LocationHandler) ListClasses(c *gin.Context) {
	if q, ok := h.listQuery(c); ok {
		page, err := h.service.ListClasses(requestContext(c), q.LocationFilter, q.Query)
		respondPage(c, page, err)
	}
}

type locationUpdater func(*gin.Context, string, services.LocationUpdate, string) (any, error)

func (h *LocationHandler) update(c *gin.Context, fn locationUpdater) {
	var body services.LocationUpdate
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := fn(c, c.Param("id"), body, actorFrom(c).UserID)
	respond(c, http.StatusOK, rec, err)
}

// PATCH /api/provinces/:id
func (h *LocationHandler) UpdateProvince(c *gin.Context) {
	h.update(c, func(c *gin.Context, id string, in services.LocationUpdate, actor string) (any, error) {
		return h.service.UpdateProvince(requestContext(c), nil, id, in, actor)
	})
}

// PATCH /api/districts/:id
func (h *LocationHandler) UpdateDistrict(c *gin.Context) {
	h.update(c, func(c *gin.Context, id string, in services.LocationUpdate, actor string) (any, error) {
		return h.service.UpdateDistrict(requestContext(c), nil, id, in, actor)
	})
}

// PATCH /api/schools/:id
func (h *LocationHandler) UpdateSchool(c *gin.Context) {
	h.update(c, func(c *gin.Context, id string, in services.LocationUpdate, actor string) (any, error) {
		return h.service.UpdateSchool(requestContext(c), nil, id, in, actor)
	})
}

// PATCH /api/classes/:id
func (h *LocationHandler) UpdateClass(c *gin.Context) {
	h.update(c, func(c *gin.Context, id string, in services.LocationUpdate, actor string) (any, error) {
		return h.service.UpdateClass(requestContext(c), nil, id, in, actor)
	})
}

type locationToggle func(ctx *gin.Context, id string, active bool, actorID string) error

func (h *LocationHandler) toggle(fn locationToggle, active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondDone(c, fn(c, c.Param("id"), active, actorFrom(c).UserID))
	}
}

// SetActive returns delete (active=false) and restore (active=true) handlers
// for one level of the hierarchy: "provinces", "districts", "schools" or
// "classes".
func (h *LocationHandler) SetActive(level string, active bool) gin.HandlerFunc {
	var fn locationToggle
	switch level {
	case "provinces":
		fn = func(c *gin.Context, id string, on bool, actor string) error {
			return h.service.SetProvinceActive(requestContext(c), nil, id, on, actor)
		}
	case "districts":
		fn = func(c *gin.Context, id string, on bool, actor string) error {
			return h.service.SetDistrictActive(requestContext(c), nil, id, on, actor)
		}
	case "schools":
		fn = func(c *gin.Context, id string, on bool, actor string) error {
			return h.service.SetSchoolActive(requestContext(c), nil, id, on, actor)
		}
	default:
		fn = func(c *gin.Context, id string, on bool, actor string) error {
			return h.service.SetClassActive(requestContext(c), nil, id, on, actor)
		}
	}
	return h.toggle(fn, active)
}
