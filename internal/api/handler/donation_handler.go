package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/redbank/donation-system/internal/api/metrics"
	"github.com/redbank/donation-system/internal/core/ports"
)

// HeaderIdempotencyKey makes donation submissions safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

type DonationHandler struct {
	donations ports.DonationService
	users     ports.UserService
}

func NewDonationHandler(donations ports.DonationService, users ports.UserService) *DonationHandler {
	return &DonationHandler{donations: donations, users: users}
}

// Submit handles POST /api/donations/:userId.
//
// @Summary      Submit a donation
// @Description  Appends a pending entry to the user's ledger. Repeating a request with the same Idempotency-Key returns the original entry, or 409 while the original is still being written.
// @Tags         donations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId           path      string                 true   "User id"
// @Param        Idempotency-Key  header    string                 false  "Client-generated retry key"
// @Param        body             body      submitDonationRequest  true   "Donation details"
// @Success      201              {object}  submitDonationResponse
// @Success      200              {object}  submitDonationResponse  "Replayed submission"
// @Failure      400              {object}  errorResponse
// @Failure      403              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Failure      409              {object}  errorResponse
// @Router       /api/donations/{userId} [post]
func (h *DonationHandler) Submit(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	var req submitDonationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.donations.Submit(c.Request().Context(), actor, ports.SubmitDonationInput{
		UserID:         c.Param("userId"),
		Date:           req.Date,
		Location:       req.Location,
		Amount:         req.Amount,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return err
	}

	if res.AlreadyExisted {
		metrics.DonationsSubmittedTotal.WithLabelValues("replayed").Inc()
		return c.JSON(http.StatusOK, submitDonationResponse{Message: "donation already recorded", Donation: res.Entry})
	}

	metrics.DonationsSubmittedTotal.WithLabelValues("created").Inc()
	metrics.LedgerConflictsTotal.Add(float64(res.Retries))
	return c.JSON(http.StatusCreated, submitDonationResponse{Message: "donation submitted", Donation: res.Entry})
}

// Approve handles PATCH /api/donations/:userId/:donationId/approve.
//
// @Summary      Approve a donation
// @Tags         donations
// @Produce      json
// @Security     BearerAuth
// @Param        userId      path      string  true  "User id"
// @Param        donationId  path      int     true  "Donation id within the user's ledger"
// @Success      200         {object}  approveDonationResponse
// @Failure      400         {object}  errorResponse
// @Failure      403         {object}  errorResponse
// @Failure      404         {object}  errorResponse
// @Failure      409         {object}  errorResponse
// @Router       /api/donations/{userId}/{donationId}/approve [patch]
func (h *DonationHandler) Approve(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	donationID, err := strconv.Atoi(c.Param("donationId"))
	if err != nil || donationID < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "donationId must be a positive integer")
	}

	res, err := h.donations.Approve(c.Request().Context(), actor, c.Param("userId"), donationID)
	if err != nil {
		return err
	}

	metrics.DonationsApprovedTotal.Inc()
	metrics.LedgerConflictsTotal.Add(float64(res.Retries))
	if res.LeveledUp {
		metrics.LevelUpsTotal.WithLabelValues(string(res.Level.LevelBadge)).Inc()
	}

	return c.JSON(http.StatusOK, approveDonationResponse{
		Message:      "donation approved",
		Donation:     res.Entry,
		Level:        res.Level,
		TotalDonated: res.TotalDonated,
		LeveledUp:    res.LeveledUp,
	})
}

// Summary handles GET /api/donations/:userId.
//
// @Summary      Donation summary
// @Tags         donations
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User id"
// @Success      200     {object}  donationSummaryResponse
// @Failure      403     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Router       /api/donations/{userId} [get]
func (h *DonationHandler) Summary(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	sum, err := h.donations.Summary(c.Request().Context(), actor, c.Param("userId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, donationSummaryResponse{
		Donations:    sum.Donations,
		Achievements: sum.Achievements,
		Level:        sum.Level,
		TotalDonated: sum.TotalDonated,
		IsActive:     sum.IsActive,
	})
}

// Achievements handles PATCH /api/donations/:userId/achievements.
//
// @Summary      Append achievements
// @Tags         donations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string               true  "User id"
// @Param        body    body      achievementsRequest  true  "Achievements to add"
// @Success      200     {object}  achievementsResponse
// @Failure      400     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Failure      404     {object}  errorResponse
// @Router       /api/donations/{userId}/achievements [patch]
func (h *DonationHandler) Achievements(c echo.Context) error {
	actor, err := identityFrom(c)
	if err != nil {
		return err
	}

	var req achievementsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	all, err := h.users.AppendAchievements(c.Request().Context(), actor, c.Param("userId"), req.Achievements)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, achievementsResponse{Achievements: all})
}
