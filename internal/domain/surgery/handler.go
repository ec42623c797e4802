package surgery

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/bed"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/auth"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – all clinical staff
	read := api.Group("", auth.RequireRole(auth.RoleSurgeon, auth.RoleAnesthetist, auth.RoleNurse, auth.RoleDoctor))
	read.GET("/surgeries", h.List)
	read.GET("/surgeries/:id", h.Get)
	read.GET("/surgeries/:id/transitions", h.AllowedTransitions)
	read.GET("/surgeries/:id/checklists", h.ListChecklists)
	read.GET("/checklists/:id", h.GetChecklist)

	// Checklists are filled in by the theatre team
	team := api.Group("", auth.RequireRole(auth.RoleSurgeon, auth.RoleAnesthetist, auth.RoleNurse))
	team.POST("/surgeries/:id/checklists/:kind", h.OpenChecklist)
	team.POST("/checklists/:id/complete", h.CompleteChecklist)
	team.POST("/surgeries/:id/transitions", h.Transition)
	team.PUT("/surgeries/:id/notes", h.UpdateNotes)

	// Booking endpoints – surgeons
	write := api.Group("", auth.RequireRole(auth.RoleSurgeon))
	write.POST("/surgeries", h.Create)
	write.PUT("/surgeries/:id/schedule", h.Reschedule)
	write.DELETE("/surgeries/:id", h.Delete)
}

// httpError maps pathway errors to HTTP responses.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrChecklistNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownRoom):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyTransitioned),
		errors.Is(err, ErrChecklistLocked),
		errors.Is(err, ErrSurgeryClosed),
		errors.Is(err, ErrHasDependentAdmission),
		errors.Is(err, ErrImmutableField),
		errors.Is(err, bed.ErrAlreadyOccupied):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrIncompleteChecklist),
		errors.Is(err, ErrChecklistMismatch),
		errors.Is(err, ErrNotesRequired),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, bed.ErrNoResourceAvailable),
		errors.Is(err, bed.ErrUnknownResource):
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

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func parseDate(v string) (time.Time, error) {
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "dates must be YYYY-MM-DD")
	}
	return d, nil
}

// -- Surgery Handlers --

type createRequest struct {
	PatientID       uuid.UUID `json:"patient_id" validate:"required"`
	SurgeonID       uuid.UUID `json:"surgeon_id" validate:"required"`
	SurgeryType     string    `json:"surgery_type" validate:"required,max=100"`
	SurgeryName     string    `json:"surgery_name" validate:"required,max=200"`
	ScheduledDate   string    `json:"scheduled_date" validate:"required"`
	ScheduledTime   string    `json:"scheduled_time" validate:"required,len=5"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0,lte=1440"`
	OperatingRoom   *string   `json:"operating_room"`
	PreOpAssessment *string   `json:"pre_op_assessment"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		return err
	}
	s := &Surgery{
		PatientID:       req.PatientID,
		SurgeonID:       req.SurgeonID,
		SurgeryType:     req.SurgeryType,
		SurgeryName:     req.SurgeryName,
		ScheduledDate:   date,
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: req.DurationMinutes,
		OperatingRoom:   req.OperatingRoom,
		PreOpAssessment: req.PreOpAssessment,
	}
	if err := h.svc.Schedule(c.Request().Context(), s); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ListFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("surgeon_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid surgeon_id")
		}
		f.SurgeonID = &id
	}
	f.Status = Status(c.QueryParam("status"))
	if v := c.QueryParam("from"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return err
		}
		f.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return err
		}
		f.To = &d
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Surgery{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}

type rescheduleRequest struct {
	ScheduledDate   *string `json:"scheduled_date"`
	ScheduledTime   *string `json:"scheduled_time" validate:"omitempty,len=5"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,gte=0,lte=1440"`
	OperatingRoom   *string `json:"operating_room"`
	PreOpAssessment *string `json:"pre_op_assessment"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ch := ScheduleChange{
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: req.DurationMinutes,
		OperatingRoom:   req.OperatingRoom,
		PreOpAssessment: req.PreOpAssessment,
	}
	if req.ScheduledDate != nil {
		d, err := parseDate(*req.ScheduledDate)
		if err != nil {
			return err
		}
		ch.ScheduledDate = &d
	}
	s, err := h.svc.Reschedule(c.Request().Context(), id, ch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

type notesRequest struct {
	PreOpAssessment *string `json:"pre_op_assessment"`
	IntraOpNotes    *string `json:"intra_op_notes"`
	Complications   *string `json:"complications"`
	PostOpNotes     *string `json:"post_op_notes"`
}

func (h *Handler) UpdateNotes(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	s, err := h.svc.UpdateNotes(c.Request().Context(), id, NotesChange(req))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Transition Handlers --

type transitionRequest struct {
	To            Status  `json:"to" validate:"required"`
	IntraOpNotes  *string `json:"intra_op_notes"`
	Complications *string `json:"complications"`
	PostOpNotes   *string `json:"post_op_notes"`
	TargetUnit    string  `json:"target_unit" validate:"omitempty,oneof=icu ward"`
	Bed           string  `json:"bed"`
	Reason        string  `json:"reason" validate:"max=500"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	res, err := h.svc.Transition(ctx, id, TransitionRequest{
		To:            req.To,
		Actor:         auth.UserIDFromContext(ctx),
		IntraOpNotes:  req.IntraOpNotes,
		Complications: req.Complications,
		PostOpNotes:   req.PostOpNotes,
		TargetUnit:    req.TargetUnit,
		Bed:           req.Bed,
		Reason:        req.Reason,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) AllowedTransitions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	next := AllowedTransitions(s.Status)
	if next == nil {
		next = []Status{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  s.Status,
		"allowed": next,
	})
}

// -- Checklist Handlers --

func (h *Handler) OpenChecklist(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.OpenChecklist(c.Request().Context(), id, ChecklistKind(c.Param("kind")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) GetChecklist(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.GetChecklist(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListChecklists(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListChecklists(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Checklist{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

type completeRequest struct {
	Items []ChecklistItem `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) CompleteChecklist(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req completeRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	cl, err := h.svc.CompleteChecklist(ctx, id, req.Items, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cl)
}
