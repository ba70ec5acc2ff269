package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mpesa/app/factory"
	"github.com/vibast-solutions/ms-go-mpesa/app/mapper"
	"github.com/vibast-solutions/ms-go-mpesa/app/provider"
	"github.com/vibast-solutions/ms-go-mpesa/app/service"
	"github.com/vibast-solutions/ms-go-mpesa/app/types"
)

type StkPushController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewStkPushController(paymentService *service.PaymentService) *StkPushController {
	return &StkPushController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("stkpush-controller"),
	}
}

func (c *StkPushController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *StkPushController) InitiateStkPush(ctx echo.Context) error {
	req, err := types.NewInitiateStkPushRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.InitiateStkPush(ctx.Request().Context(), req.PhoneNumber, req.Amount.String())
	if err != nil {
		l := factory.LoggerWithContext(c.logger, ctx)
		switch {
		case errors.Is(err, service.ErrInvalidPhoneNumber), errors.Is(err, service.ErrInvalidAmount):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, provider.ErrTokenUnavailable):
			l.WithError(err).Error("Provider token unavailable")
			return c.writeError(ctx, http.StatusBadGateway, "payment provider authentication failed")
		case errors.Is(err, provider.ErrPushRejected):
			l.WithError(err).Warn("Provider rejected push")
			return c.writeError(ctx, http.StatusBadGateway, err.Error())
		case errors.Is(err, service.ErrTransactionAlreadyExists):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		default:
			l.WithError(err).Error("Initiate stk push failed")
			return c.writeError(ctx, http.StatusBadGateway, "payment provider unreachable")
		}
	}

	return ctx.JSON(http.StatusAccepted, &types.InitiateStkPushResponse{
		CheckoutRequestID: result.Transaction.CheckoutRequestID,
		MerchantRequestID: derefString(result.Transaction.MerchantRequestID),
		CustomerMessage:   result.CustomerMessage,
	})
}

// HandleStkCallback ingests Safaricom's asynchronous result. The endpoint is
// unauthenticated by provider design. Valid JSON is always acknowledged with
// ResultCode 0, even for unknown transactions; a failure acknowledgment would
// only make the provider re-send the same callback.
func (c *StkPushController) HandleStkCallback(ctx echo.Context) error {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, &types.StkCallbackAck{ResultCode: 1, ResultDesc: "unable to read request body"})
	}

	callback, err := types.ParseStkCallback(rawBody)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Malformed stk callback")
		return ctx.JSON(http.StatusBadRequest, &types.StkCallbackAck{ResultCode: 1, ResultDesc: "invalid callback payload"})
	}

	result, err := c.paymentService.HandleStkCallback(ctx.Request().Context(), callback, rawBody)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle stk callback failed")
		return ctx.JSON(http.StatusInternalServerError, &types.StkCallbackAck{ResultCode: 1, ResultDesc: "internal server error"})
	}

	l := factory.LoggerWithContext(c.logger, ctx).WithField("checkout_request_id", result.CheckoutRequestID)
	switch result.Outcome {
	case service.CallbackApplied:
		l.WithField("result_code", callback.ResultCode).Info("Callback applied")
	case service.CallbackAlreadyProcessed:
		l.Info("Callback redelivered for resolved transaction")
	case service.CallbackIgnoredMissingID:
		l.Warn("Callback carries no CheckoutRequestID")
	case service.CallbackIgnoredUnknown:
		l.Warn("Callback references unknown transaction")
	}

	return ctx.JSON(http.StatusOK, &types.StkCallbackAck{ResultCode: 0, ResultDesc: "Success"})
}

func (c *StkPushController) CheckStatus(ctx echo.Context) error {
	req := types.NewStatusRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetStatus(ctx.Request().Context(), req.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Check status failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.TransactionToResponse(item))
}

func (c *StkPushController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
