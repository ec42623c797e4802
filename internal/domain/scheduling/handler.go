package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/auth"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/pagination"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read and booking endpoints – front desk and clinicians
	desk := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor, auth.RoleSurgeon, auth.RoleNurse))
	desk.GET("/providers/:id/slots", h.ListSlots)
	desk.GET("/providers/:id/availability", h.GetAvailability)
	desk.GET("/patients/:id/appointments", h.ListByPatient)
	desk.POST("/appointments", h.Book)
	desk.POST("/appointments/:id/cancel", h.Cancel)

	// Providers manage their own weekly hours
	providers := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleSurgeon))
	providers.PUT("/providers/:id/availability", h.SetAvailability)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrAlreadyCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
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

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListSlots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	days, err := h.svc.ListSlots(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if days == nil {
		days = []DaySlots{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"provider_id": id, "data": days})
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if rows == nil {
		rows = []Availability{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": rows})
}

type availabilityRow struct {
	DayOfWeek   int    `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime   string `json:"start_time" validate:"required,len=5"`
	EndTime     string `json:"end_time" validate:"required,len=5"`
	IsAvailable *bool  `json:"is_available"`
}

type availabilityRequest struct {
	Rows []availabilityRow `json:"availability" validate:"dive"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req availabilityRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	rows := make([]Availability, 0, len(req.Rows))
	for _, r := range req.Rows {
		open := true
		if r.IsAvailable != nil {
			open = *r.IsAvailable
		}
		rows = append(rows, Availability{
			DayOfWeek:   time.Weekday(r.DayOfWeek),
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
			IsAvailable: open,
		})
	}
	saved, err := h.svc.SetAvailability(c.Request().Context(), id, rows)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": saved})
}

type bookRequest struct {
	ProviderID      uuid.UUID `json:"provider_id" validate:"required"`
	PatientID       uuid.UUID `json:"patient_id" validate:"required"`
	Date            string    `json:"date" validate:"required,len=10"`
	Time            string    `json:"time" validate:"required,len=5"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0,lte=480"`
	Reason          string    `json:"reason" validate:"max=500"`
}

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), BookRequest(req))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
