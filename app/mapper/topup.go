package mapper

import (
	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/service"
	"github.com/sokofone/ms-go-airtime/app/types"
)

func InitiationToResponse(item *service.InitiationResult) *types.TopupInitiationResponse {
	if item == nil {
		return nil
	}

	return &types.TopupInitiationResponse{
		Success:           true,
		Message:           item.CustomerMessage,
		CheckoutRequestID: item.CheckoutRequestID,
		MerchantRequestID: item.MerchantRequestID,
	}
}

func StatusViewToResponse(item *service.TransactionStatusView) *types.TransactionStatusResponse {
	if item == nil {
		return nil
	}

	resp := &types.TransactionStatusResponse{
		CheckoutRequestID: item.CheckoutRequestID,
		Status:            string(item.Status),
		Carrier:           item.Carrier,
		Recipient:         item.Recipient,
		RequestedAmount:   item.RequestedAmount.String(),
		AmountReceived:    item.AmountReceived.String(),
		PaymentReceipt:    item.PaymentReceipt,
		ProviderUsed:      item.ProviderUsed,
		CreatedAt:         item.CreatedAt,
		CompletedAt:       item.CompletedAt,
	}
	if item.DispatchedAmount != nil {
		dispatched := item.DispatchedAmount.String()
		resp.DispatchedAmount = &dispatched
	}
	return resp
}

func BonusSettingsToResponse(item *entity.BonusSettings) *types.BonusSettingsResponse {
	if item == nil {
		return nil
	}

	return &types.BonusSettingsResponse{
		SafaricomPercentage:      item.SafaricomPercentage.String(),
		AfricastalkingPercentage: item.AfricastalkingPercentage.String(),
		UpdatedAt:                item.UpdatedAt,
	}
}
