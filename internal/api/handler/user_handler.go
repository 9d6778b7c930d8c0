package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/core/ports"
)

// UserHandler exposes the credential store to authenticated callers.
type UserHandler struct {
	service ports.UserService
}

func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Me handles GET /api/users/me.
//
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.User
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	user, err := h.service.GetCurrentUser(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// List handles GET /api/users.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        role        query     string  false  "Filter by role"
// @Param        bloodGroup  query     string  false  "Filter by blood group"
// @Param        city        query     string  false  "Filter by city"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Page size (default 20, max 100)"
// @Success      200         {object}  listUsersResponse
// @Failure      400         {object}  errorResponse
// @Failure      403         {object}  errorResponse
// @Router       /api/users [get]
func (h *UserHandler) List(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	filter := ports.UserFilter{
		Role:       c.QueryParam("role"),
		BloodGroup: c.QueryParam("bloodGroup"),
		City:       c.QueryParam("city"),
	}
	if err := echo.QueryParamsBinder(c).
		Int("page", &filter.Page).
		Int("limit", &filter.Limit).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "page and limit must be integers")
	}

	res, err := h.service.ListUsers(c.Request().Context(), actor, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listUsersResponse{
		Data:       res.Items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}

// Donors handles GET /api/users/donors.
//
// @Summary      Find available donors
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        bloodGroup  query     string  false  "Blood group, e.g. O-"
// @Param        city        query     string  false  "City"
// @Success      200         {array}   domain.User
// @Failure      400         {object}  errorResponse
// @Router       /api/users/donors [get]
func (h *UserHandler) Donors(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	donors, err := h.service.ListDonors(c.Request().Context(), actor, c.QueryParam("bloodGroup"), c.QueryParam("city"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, donors)
}

// TopDonors handles GET /api/users/top-donors.
//
// @Summary      Leaderboard
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Number of donors (default 10, max 100)"
// @Success      200    {array}   domain.User
// @Router       /api/users/top-donors [get]
func (h *UserHandler) TopDonors(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	var limit int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}

	donors, err := h.service.GetTopDonors(c.Request().Context(), actor, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, donors)
}

// Get handles GET /api/users/:id.
//
// @Summary      Get a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  domain.User
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	user, err := h.service.GetUser(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Update handles PUT /api/users/:id.
//
// @Summary      Update a user's profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "User id"
// @Param        body  body      updateUserRequest  true  "Fields to change"
// @Success      200   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/users/{id} [put]
func (h *UserHandler) Update(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.service.UpdateUser(c.Request().Context(), actor, c.Param("id"), ports.UserPatch{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		BloodGroup:       req.BloodGroup,
		BloodGroupNeeded: req.BloodGroupNeeded,
		City:             req.City,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Delete handles DELETE /api/users/:id.
//
// @Summary      Delete a user
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  string  true  "User id"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteUser(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetRole handles PATCH /api/users/:id/role.
//
// @Summary      Change a user's role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string          true  "User id"
// @Param        body  body      setRoleRequest  true  "New role"
// @Success      200   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/users/{id}/role [patch]
func (h *UserHandler) SetRole(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	var req setRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.service.SetUserRole(c.Request().Context(), actor, c.Param("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// SetSuspended handles PATCH /api/users/:id/suspend.
//
// @Summary      Suspend or reinstate a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string               true  "User id"
// @Param        body  body      setSuspendedRequest  true  "Suspension flag"
// @Success      200   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/users/{id}/suspend [patch]
func (h *UserHandler) SetSuspended(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	var req setSuspendedRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.service.SetSuspended(c.Request().Context(), actor, c.Param("id"), *req.Suspended)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// ToggleActive handles PATCH /api/users/:id/toggle-active.
//
// @Summary      Flip a user's availability
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  toggleActiveResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/users/{id}/toggle-active [patch]
func (h *UserHandler) ToggleActive(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	active, err := h.service.ToggleActive(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toggleActiveResponse{IsActive: active})
}

// UploadImage handles PUT /api/users/:id/profile-image (multipart field "image").
//
// @Summary      Upload a profile image
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true  "User id"
// @Param        image  formData  file    true  "Image file"
// @Success      200    {object}  profileImageResponse
// @Failure      400    {object}  errorResponse
// @Failure      403    {object}  errorResponse
// @Failure      404    {object}  errorResponse
// @Router       /api/users/{id}/profile-image [put]
func (h *UserHandler) UploadImage(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable image file")
	}
	defer src.Close()

	path, err := h.service.UploadProfileImage(c.Request().Context(), actor, c.Param("id"), ports.ImageUpload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Body:     src,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profileImageResponse{ProfileImage: path})
}

// DeleteImage handles DELETE /api/users/:id/profile-image.
//
// @Summary      Remove the profile image
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User id"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/users/{id}/profile-image [delete]
func (h *UserHandler) DeleteImage(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteProfileImage(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "profile image deleted"})
}
