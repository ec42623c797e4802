package admission

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/bed"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/auth"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/pagination"
)

type Handler struct {
	coord    *Coordinator
	validate *validator.Validate
}

func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleSurgeon, auth.RoleAnesthetist, auth.RoleNurse, auth.RoleDoctor))
	read.GET("/admissions", h.List)
	read.GET("/admissions/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSurgeon, auth.RoleNurse))
	write.POST("/admissions", h.AdmitDirect)
	write.POST("/admissions/:id/discharge", h.Discharge)
}

func httpError(err error) error {
	var te *TransferError
	switch {
	case errors.As(err, &te):
		return echo.NewHTTPError(http.StatusInternalServerError, "transfer rollback failed; bed requires reconciliation")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, bed.ErrUnknownResource):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyDischarged), errors.Is(err, ErrWrongUnit), errors.Is(err, bed.ErrAlreadyOccupied):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, bed.ErrNoResourceAvailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

type directRequest struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
	Unit      Unit      `json:"unit" validate:"required,oneof=icu ward"`
	Bed       string    `json:"bed_number" validate:"max=32"`
	Reason    string    `json:"admission_reason" validate:"required,max=500"`
}

func (h *Handler) AdmitDirect(c echo.Context) error {
	var req directRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	a, err := h.coord.AdmitDirect(c.Request().Context(), DirectRequest(req))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.coord.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Unit: Unit(c.QueryParam("unit")), Status: Status(c.QueryParam("status"))}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	items, total, err := h.coord.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Admission{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}

type dischargeRequest struct {
	Notes   string `json:"discharge_notes" validate:"max=2000"`
	WardBed string `json:"ward_bed" validate:"max=32"`
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req dischargeRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	res, err := h.coord.Discharge(ctx, id, DischargeRequest{
		Notes:   req.Notes,
		WardBed: req.WardBed,
		Actor:   auth.UserIDFromContext(ctx),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}
