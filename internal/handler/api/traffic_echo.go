package api

import (
	"errors"
	"net/http"
	"time"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/usecase"
	xhttp "TrainCtl/pkg/http"
	xlogger "TrainCtl/pkg/logger"
	"TrainCtl/pkg/util"

	"github.com/labstack/echo/v4"
)

const (
	rootMessage     = "System is operational! API Version 1.0"
	receivedMessage = "Status received successfully"
)

// TrafficHandler exposes the traffic controller over HTTP.
type TrafficHandler struct {
	logger *xlogger.Logger
	ctl    *usecase.TrafficController
	broker *Broker
	now    func() time.Time
}

func NewTrafficHandler(logger *xlogger.Logger, ctl *usecase.TrafficController, broker *Broker) *TrafficHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &TrafficHandler{logger: logger, ctl: ctl, broker: broker, now: time.Now}
}

func (h *TrafficHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)

	g := e.Group("/api/v1")
	g.POST("/train_status", h.ReportStatus)
	g.GET("/optimize/:train_id", h.Optimize)
	g.GET("/conflicts", h.Conflicts)
	g.GET("/trains", h.Trains)
	g.GET("/trains/:train_id", h.Train)
	g.GET("/trains/:train_id/history", h.History)
	g.GET("/topology", h.Topology)
	if h.broker != nil {
		g.GET("/stream", h.Stream)
	}
}

func (h *TrafficHandler) Root(c echo.Context) error {
	return xhttp.MessageResponse(c, rootMessage, nil)
}

func (h *TrafficHandler) Health(c echo.Context) error {
	return xhttp.MessageResponse(c, "ok", nil)
}

func (h *TrafficHandler) Ready(c echo.Context) error {
	if err := h.ctl.Ready(c.Request().Context()); err != nil {
		h.logger.Warn("readiness check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()))
	}
	return xhttp.MessageResponse(c, "ready", nil)
}

func (h *TrafficHandler) ReportStatus(c echo.Context) error {
	req := &models.StatusReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts := h.now()
	if req.Timestamp != "" {
		parsed, ok := util.ParseTime(req.Timestamp)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("timestamp %q is not a valid time", req.Timestamp))
		}
		ts = parsed
	}

	if err := h.ctl.ReportStatus(c.Request().Context(), req.Report(ts)); err != nil {
		return h.fail(c, "report status", err)
	}
	return xhttp.MessageResponse(c, receivedMessage, map[string]interface{}{"train_id": req.TrainID})
}

func (h *TrafficHandler) Optimize(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	d, err := h.ctl.RequestDecision(c.Request().Context(), req.TrainID)
	if err != nil {
		return h.fail(c, "request decision", err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *TrafficHandler) Conflicts(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ctl.Conflicts(c.Request().Context()))
}

func (h *TrafficHandler) Trains(c echo.Context) error {
	trains := h.ctl.Trains(c.Request().Context())
	return xhttp.ListResponse(c, trains, int64(len(trains)))
}

func (h *TrafficHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.ctl.Train(c.Request().Context(), req.TrainID)
	if err != nil {
		return h.fail(c, "get train", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *TrafficHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	recs, err := h.ctl.History(c.Request().Context(), req.TrainID, req.Limit)
	if err != nil {
		return h.fail(c, "train history", err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *TrafficHandler) Topology(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return xhttp.SuccessResponse(c, h.ctl.Topology())
}

// fail maps domain errors onto API errors. Anything unexpected is logged
// and reported as a 500.
func (h *TrafficHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, models.ErrStaleReport):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()).WithError(err))
	case errors.Is(err, models.ErrInvalidReport):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	case errors.Is(err, models.ErrUnknownTrain):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()).WithError(err))
	case errors.Is(err, usecase.ErrHistoryDisabled):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()).WithError(err))
	}
	h.logger.Error(op+" failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("internal error").WithError(err))
}
