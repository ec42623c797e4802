package bed

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/auth"
)

type Handler struct {
	pool *Pool
}

func NewHandler(pool *Pool) *Handler {
	return &Handler{pool: pool}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleSurgeon, auth.RoleNurse, auth.RoleAnesthetist, auth.RoleDoctor))
	g.GET("/beds", h.Board)
	g.GET("/beds/available", h.Available)
}

func (h *Handler) kind(c echo.Context) (Kind, error) {
	k := Kind(c.QueryParam("kind"))
	if !k.Valid() {
		return "", echo.NewHTTPError(http.StatusBadRequest, "kind must be icu, ward or operating_room")
	}
	return k, nil
}

// Board lists every resource of a kind with its occupant.
func (h *Handler) Board(c echo.Context) error {
	k, err := h.kind(c)
	if err != nil {
		return err
	}
	items := h.pool.Snapshot(k)
	occupied := 0
	for _, r := range items {
		if !r.Available() {
			occupied++
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pool_kind": k,
		"total":     len(items),
		"occupied":  occupied,
		"data":      items,
	})
}

func (h *Handler) Available(c echo.Context) error {
	k, err := h.kind(c)
	if err != nil {
		return err
	}
	free := h.pool.ListAvailable(k)
	if free == nil {
		free = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pool_kind": k,
		"data":      free,
	})
}
