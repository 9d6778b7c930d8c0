package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/api/metrics"
	"github.com/redbank/donation-system/internal/core/ports"
)

type RequestHandler struct {
	service ports.RequestService
}

func NewRequestHandler(service ports.RequestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// Create handles POST /api/requests.
//
// @Summary      Open a blood request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createRequestRequest  true  "Blood group and city"
// @Success      201   {object}  domain.BloodRequest
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/requests [post]
func (h *RequestHandler) Create(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	var req createRequestRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	created, err := h.service.Create(c.Request().Context(), actor, req.BloodGroup, req.City)
	if err != nil {
		return err
	}

	metrics.BloodRequestsTotal.WithLabelValues("created").Inc()
	return c.JSON(http.StatusCreated, created)
}

// List handles GET /api/requests.
//
// @Summary      List blood requests
// @Description  Recipients only see their own requests.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status      query     string  false  "pending, accepted or completed"
// @Param        bloodGroup  query     string  false  "Blood group"
// @Param        city        query     string  false  "City"
// @Success      200         {array}   domain.BloodRequest
// @Failure      400         {object}  errorResponse
// @Router       /api/requests [get]
func (h *RequestHandler) List(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	items, err := h.service.List(c.Request().Context(), actor, ports.RequestFilter{
		Status:     c.QueryParam("status"),
		BloodGroup: c.QueryParam("bloodGroup"),
		City:       c.QueryParam("city"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// Accept handles PATCH /api/requests/:id/accept.
//
// @Summary      Accept a blood request
// @Description  Moves a pending request to accepted and records a completed donation for the donor.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  domain.BloodRequest
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /api/requests/{id}/accept [patch]
func (h *RequestHandler) Accept(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	accepted, err := h.service.Accept(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}

	metrics.BloodRequestsTotal.WithLabelValues("accepted").Inc()
	return c.JSON(http.StatusOK, accepted)
}

// Complete handles PATCH /api/requests/:id/complete.
//
// @Summary      Complete a blood request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  domain.BloodRequest
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /api/requests/{id}/complete [patch]
func (h *RequestHandler) Complete(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	completed, err := h.service.Complete(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}

	metrics.BloodRequestsTotal.WithLabelValues("completed").Inc()
	return c.JSON(http.StatusOK, completed)
}
