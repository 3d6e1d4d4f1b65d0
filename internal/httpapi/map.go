package httpapi

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/locator"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("query"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type searchQuery struct {
	Lat      *float64 `query:"lat" validate:"required,min=-90,max=90"`
	Lon      *float64 `query:"lon" validate:"required,min=-180,max=180"`
	RadiusKm *float64 `query:"radius_km"`
}

func (q searchQuery) point() geo.Point {
	return geo.NewPoint(*q.Lat, *q.Lon)
}

type routeQuery struct {
	Lat       *float64 `query:"lat" validate:"required,min=-90,max=90"`
	Lon       *float64 `query:"lon" validate:"required,min=-180,max=180"`
	CabinetID string   `query:"cabinet_id" validate:"required"`
}

func (q routeQuery) point() geo.Point {
	return geo.NewPoint(*q.Lat, *q.Lon)
}

// parseFloatParams reads the named query parameters into dst. Absent or blank
// parameters leave dst untouched.
func parseFloatParams(r *http.Request, dst map[string]**float64) map[string]any {
	q := r.URL.Query()
	bad := map[string]any{}
	for name, ptr := range dst {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			bad[name] = "must be a number"
			continue
		}
		*ptr = &v
	}
	if len(bad) == 0 {
		return nil
	}
	return bad
}

func validationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]any{"error": err.Error()}
	}
	out := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out[fe.Field()] = fe.Tag() + "=" + fe.Param()
		} else {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}

func (h *Handler) parseSearch(w http.ResponseWriter, r *http.Request) (searchQuery, bool) {
	var req searchQuery
	if bad := parseFloatParams(r, map[string]**float64{
		"lat":       &req.Lat,
		"lon":       &req.Lon,
		"radius_km": &req.RadiusKm,
	}); bad != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid query parameters", bad)
		return req, false
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid query parameters", validationDetails(err))
		return req, false
	}
	return req, true
}

func (h *Handler) handleNearestCabinet(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseSearch(w, r)
	if !ok {
		return
	}
	if !h.ensureLocator(w) {
		return
	}

	res, err := h.locator.NearestCabinet(r.Context(), req.point(), req.RadiusKm)
	if err != nil {
		h.writeLocatorError(w, err, "nearest cabinet lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePlanOptions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseSearch(w, r)
	if !ok {
		return
	}
	if !h.ensureLocator(w) {
		return
	}

	opts, err := h.locator.PlanOptions(r.Context(), req.point(), req.RadiusKm)
	if err != nil {
		h.writeLocatorError(w, err, "plan options lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"options": opts})
}

func (h *Handler) handlePlanRoute(w http.ResponseWriter, r *http.Request) {
	var req routeQuery
	if bad := parseFloatParams(r, map[string]**float64{
		"lat": &req.Lat,
		"lon": &req.Lon,
	}); bad != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid query parameters", bad)
		return
	}
	req.CabinetID = strings.TrimSpace(r.URL.Query().Get("cabinet_id"))
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid query parameters", validationDetails(err))
		return
	}
	id, err := uuid.Parse(req.CabinetID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "cabinet id is not a valid uuid", map[string]any{"cabinet_id": req.CabinetID})
		return
	}
	if !h.ensureLocator(w) {
		return
	}

	res, err := h.locator.PlanRoute(r.Context(), req.point(), id.String())
	if err != nil {
		h.writeLocatorError(w, err, "plan route failed")
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeLocatorError(w http.ResponseWriter, err error, logMsg string) {
	var snapErr *locator.UnableToSnapError
	switch {
	case errors.Is(err, locator.ErrInvalidRadius), errors.Is(err, locator.ErrInvalidPoint):
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, locator.ErrCabinetNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "cabinet not found", nil)
	case errors.Is(err, locator.ErrNoCabinetsInRadius):
		h.writeError(w, http.StatusNotFound, "no_cabinets_in_radius", "no active cabinets within the search radius", nil)
	case errors.Is(err, locator.ErrNoCableGeometry):
		h.writeError(w, http.StatusUnprocessableEntity, "no_cable_geometry", "no active cable geometry to route over", nil)
	case errors.Is(err, locator.ErrNoFiberRoute):
		h.writeError(w, http.StatusUnprocessableEntity, "no_fiber_route", "no fiber path connects the location to the cabinet", nil)
	case errors.As(err, &snapErr):
		h.writeError(w, http.StatusUnprocessableEntity, "unable_to_snap", snapErr.Error(), map[string]any{
			"max_m":   snapErr.MaxM,
			"query":   snapErr.Query,
			"cabinet": snapErr.Cabinet,
		})
	default:
		h.log.Error().Err(err).Msg(logMsg)
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to read the asset store", nil)
	}
}
