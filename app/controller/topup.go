package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/daraja"
	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/factory"
	"github.com/sokofone/ms-go-airtime/app/mapper"
	"github.com/sokofone/ms-go-airtime/app/service"
	"github.com/sokofone/ms-go-airtime/app/types"
)

type topupEngine interface {
	HandleInitiation(ctx context.Context, input *service.InitiationInput) (*service.InitiationResult, error)
	HandlePaymentCallback(ctx context.Context, cb *daraja.STKCallback) error
	GetStatus(ctx context.Context, checkoutRequestID string) (*service.TransactionStatusView, error)
}

type bonusManager interface {
	GetSettings(ctx context.Context) (*entity.BonusSettings, error)
	UpdateSettings(ctx context.Context, safaricomPct, africastalkingPct decimal.Decimal, actor string) (*entity.BonusSettings, error)
}

type reversalSettler interface {
	HandleResult(ctx context.Context, result *daraja.ReversalResult) error
	HandleTimeout(ctx context.Context, result *daraja.ReversalResult) error
}

type TopupController struct {
	engine    topupEngine
	bonuses   bonusManager
	reversals reversalSettler
	logger    logrus.FieldLogger
}

func NewTopupController(engine topupEngine, bonuses bonusManager, reversals reversalSettler) *TopupController {
	return &TopupController{
		engine:    engine,
		bonuses:   bonuses,
		reversals: reversals,
		logger:    factory.NewModuleLogger("topup-controller"),
	}
}

func (c *TopupController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *TopupController) Ping(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "pong")
}

func (c *TopupController) InitiateTopup(ctx echo.Context) error {
	req, err := types.NewTopupInitiationRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.engine.HandleInitiation(ctx.Request().Context(), &service.InitiationInput{
		PayerMsisdn:       req.PhoneNumber,
		DestinationMsisdn: req.Recipient,
		Amount:            req.Amount,
		RawPayload:        req.RawPayload,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAmountOutOfRange),
			errors.Is(err, service.ErrCarrierNotSupported),
			errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPushFailed):
			c.log(ctx).WithError(err).Error("STK push submission failed")
			return c.writeError(ctx, http.StatusBadGateway, "payment push failed")
		default:
			c.log(ctx).WithError(err).Error("Topup initiation failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusAccepted, mapper.InitiationToResponse(result))
}

// PaymentCallback acknowledges the rail no matter what happens inside;
// anything other than ResultCode 0 makes the rail redeliver.
func (c *TopupController) PaymentCallback(ctx echo.Context) error {
	cb, err := types.NewSTKCallbackFromContext(ctx)
	if err != nil {
		c.log(ctx).WithError(err).Warn("Malformed payment callback")
		return c.ack(ctx)
	}

	if err := c.engine.HandlePaymentCallback(ctx.Request().Context(), cb); err != nil {
		c.log(ctx).WithError(err).Error("Payment callback processing failed")
	}
	return c.ack(ctx)
}

func (c *TopupController) ReversalResult(ctx echo.Context) error {
	result, err := types.NewReversalResultFromContext(ctx)
	if err != nil {
		c.log(ctx).WithError(err).Warn("Malformed reversal result")
		return c.ack(ctx)
	}

	if err := c.reversals.HandleResult(ctx.Request().Context(), result); err != nil {
		c.log(ctx).WithError(err).Error("Reversal result processing failed")
	}
	return c.ack(ctx)
}

func (c *TopupController) ReversalTimeout(ctx echo.Context) error {
	result, err := types.NewReversalResultFromContext(ctx)
	if err != nil {
		c.log(ctx).WithError(err).Warn("Malformed reversal timeout")
		return c.ack(ctx)
	}

	if err := c.reversals.HandleTimeout(ctx.Request().Context(), result); err != nil {
		c.log(ctx).WithError(err).Error("Reversal timeout processing failed")
	}
	return c.ack(ctx)
}

func (c *TopupController) GetTransactionStatus(ctx echo.Context) error {
	req, err := types.NewGetTransactionStatusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	view, err := c.engine.GetStatus(ctx.Request().Context(), req.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		}
		c.log(ctx).WithError(err).Error("Get transaction status failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.StatusViewToResponse(view))
}

func (c *TopupController) GetBonusSettings(ctx echo.Context) error {
	settings, err := c.bonuses.GetSettings(ctx.Request().Context())
	if err != nil {
		c.log(ctx).WithError(err).Error("Get bonus settings failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
	return ctx.JSON(http.StatusOK, mapper.BonusSettingsToResponse(settings))
}

func (c *TopupController) UpdateBonusSettings(ctx echo.Context) error {
	req, err := types.NewUpdateBonusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	settings, err := c.bonuses.UpdateSettings(ctx.Request().Context(),
		req.SafaricomPercentage, req.AfricastalkingPercentage, req.Actor)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.log(ctx).WithError(err).Error("Update bonus settings failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.BonusSettingsToResponse(settings))
}

func (c *TopupController) log(ctx echo.Context) logrus.FieldLogger {
	return factory.LoggerWithContext(c.logger, ctx)
}

func (c *TopupController) ack(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &daraja.CallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}

func (c *TopupController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Success: false, Message: message})
}
