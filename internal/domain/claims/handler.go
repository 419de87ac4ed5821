package claims

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/claimflow/claimflow/pkg/pagination"
)

var validate = validator.New()

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/claims", h.Create)
	api.GET("/claims", h.List)
	api.GET("/claims/:id", h.Get)
	api.GET("/claims/:id/lines", h.GetLines)
	api.POST("/claims/:id/lines", h.AttachService)
	api.DELETE("/claims/:id/lines/:service_id", h.DetachService)
	api.PUT("/claims/:id/lines", h.ReplaceLines)

	api.POST("/claims/:id/validate", h.Validate)
	api.POST("/claims/:id/submit", h.Submit)
	api.POST("/claims/:id/process", h.Process)
	api.POST("/claims/:id/transition", h.Transition)
	api.POST("/claims/:id/void", h.Void)
	api.POST("/claims/:id/appeal", h.Appeal)

	api.GET("/claims/:id/status", h.Status)
	api.POST("/claims/:id/refresh", h.Refresh)
	api.GET("/claims/:id/timeline", h.Timeline)
	api.GET("/claims/:id/transitions", h.TransitionOptions)
	api.GET("/claims/:id/progress", h.Progress)

	api.POST("/claims/batch/validate", h.BatchValidate)
	api.POST("/claims/batch/submit", h.BatchSubmit)
	api.POST("/claims/batch/refresh", h.BatchRefresh)

	api.GET("/reports/claims/aging", h.Aging)
}

// -- Request DTOs --

type createClaimRequest struct {
	ClientID         uuid.UUID   `json:"client_id" validate:"required"`
	PayerID          uuid.UUID   `json:"payer_id" validate:"required"`
	Type             string      `json:"type" validate:"omitempty,oneof=original adjustment replacement void"`
	ServiceIDs       []uuid.UUID `json:"service_ids" validate:"required,min=1"`
	SubmissionMethod *string     `json:"submission_method" validate:"omitempty,oneof=electronic portal paper"`
	OriginalClaimID  *uuid.UUID  `json:"original_claim_id"`
	Notes            *string     `json:"notes"`
	ActorID          *uuid.UUID  `json:"actor_id"`
}

type submitRequest struct {
	Method          string     `json:"method" validate:"omitempty,oneof=electronic portal paper"`
	ExternalClaimID *string    `json:"external_claim_id"`
	Notes           *string    `json:"notes"`
	ActorID         *uuid.UUID `json:"actor_id"`
}

type transitionRequest struct {
	Target          Status     `json:"target" validate:"required"`
	Notes           *string    `json:"notes"`
	DenialReason    *string    `json:"denial_reason"`
	DenialDetails   *string    `json:"denial_details"`
	AdjustmentCodes []string   `json:"adjustment_codes"`
	PaidAmount      *float64   `json:"paid_amount" validate:"omitempty,gt=0"`
	ActorID         *uuid.UUID `json:"actor_id"`
}

type notesRequest struct {
	Notes   *string    `json:"notes"`
	ActorID *uuid.UUID `json:"actor_id"`
}

type idsRequest struct {
	ClaimIDs []uuid.UUID `json:"claim_ids" validate:"required,min=1"`
}

type batchSubmitRequest struct {
	ClaimIDs      []uuid.UUID `json:"claim_ids" validate:"required,min=1"`
	DefaultMethod string      `json:"default_method" validate:"omitempty,oneof=electronic portal paper"`
	ActorID       *uuid.UUID  `json:"actor_id"`
}

type replaceLinesRequest struct {
	ServiceIDs []uuid.UUID `json:"service_ids" validate:"required,min=1"`
}

type attachServiceRequest struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
}

// -- Handlers --

func (h *Handler) Create(c echo.Context) error {
	var req createClaimRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.svc.CreateClaim(c.Request().Context(), CreateClaimInput{
		ClientID:         req.ClientID,
		PayerID:          req.PayerID,
		Type:             req.Type,
		ServiceIDs:       req.ServiceIDs,
		SubmissionMethod: req.SubmissionMethod,
		OriginalClaimID:  req.OriginalClaimID,
		Notes:            req.Notes,
		ActorID:          req.ActorID,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, claim)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	claim, err := h.svc.GetClaim(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := Filter{
		Status: Status(c.QueryParam("status")),
		Type:   c.QueryParam("type"),
		Search: c.QueryParam("search"),
	}
	if v := c.QueryParam("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid client_id")
		}
		filter.ClientID = &id
	}
	if v := c.QueryParam("payer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payer_id")
		}
		filter.PayerID = &id
	}
	result, total, err := h.svc.ListClaims(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(result, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetLines(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	lines, err := h.svc.GetLines(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *Handler) AttachService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req attachServiceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.svc.AttachService(c.Request().Context(), id, req.ServiceID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) DetachService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	serviceID, err := uuid.Parse(c.Param("service_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid service_id")
	}
	claim, err := h.svc.DetachService(c.Request().Context(), id, serviceID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) ReplaceLines(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req replaceLinesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.svc.ReplaceLines(c.Request().Context(), id, req.ServiceIDs)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) Validate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	result, err := h.svc.Validate(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.svc.ValidateAndSubmit(c.Request().Context(), id, SubmissionSpec{
		Method:          req.Method,
		ExternalClaimID: req.ExternalClaimID,
		Notes:           req.Notes,
		ActorID:         req.ActorID,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) Process(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	outcome, err := h.svc.ProcessClaim(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.svc.TransitionStatus(c.Request().Context(), id, req.Target, TransitionData{
		Notes:           req.Notes,
		DenialReason:    req.DenialReason,
		DenialDetails:   req.DenialDetails,
		AdjustmentCodes: req.AdjustmentCodes,
		PaidAmount:      req.PaidAmount,
		ActorID:         req.ActorID,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) Void(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.svc.Void(c.Request().Context(), id, req.Notes, req.ActorID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) Appeal(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.svc.Appeal(c.Request().Context(), id, req.Notes, req.ActorID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) Status(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	info, err := h.svc.GetStatus(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) Refresh(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	outcome, err := h.svc.RefreshStatus(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) Timeline(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	timeline, err := h.svc.GetTimeline(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, timeline)
}

func (h *Handler) TransitionOptions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	options, err := h.svc.TransitionOptions(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, options)
}

func (h *Handler) Progress(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	progress, err := h.svc.MonitorProgress(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *Handler) BatchValidate(c echo.Context) error {
	var req idsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.BatchValidate(c.Request().Context(), req.ClaimIDs))
}

func (h *Handler) BatchSubmit(c echo.Context) error {
	var req batchSubmitRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.BatchSubmit(c.Request().Context(), BatchSubmitSpec{
		ClaimIDs:      req.ClaimIDs,
		DefaultMethod: req.DefaultMethod,
		ActorID:       req.ActorID,
	}))
}

func (h *Handler) BatchRefresh(c echo.Context) error {
	var req idsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.BatchRefresh(c.Request().Context(), req.ClaimIDs))
}

func (h *Handler) Aging(c echo.Context) error {
	report, err := h.svc.AgingReport(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// -- Plumbing --

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// toHTTPError maps the domain error taxonomy onto transport codes. A
// validation failure returns the full issue list, never a generic message.
func toHTTPError(err error) error {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	}
	var vf *ValidationFailedError
	if errors.As(err, &vf) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message":  vf.Error(),
			"errors":   vf.Errors,
			"warnings": vf.Warnings,
		})
	}
	var it *InvalidTransitionError
	if errors.As(err, &it) {
		return echo.NewHTTPError(http.StatusConflict, it.Error())
	}
	var br *BusinessRuleError
	if errors.As(err, &br) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, br.Error())
	}
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return echo.NewHTTPError(http.StatusBadGateway, ie.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
