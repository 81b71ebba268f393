package service

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/factory"
	"github.com/sokofone/ms-go-airtime/config"
)

// Notifier posts completed-sale and offline-fulfillment events to optional
// downstream services. Everything here is best-effort; a failure is recorded
// in the error store and never affects the transaction outcome.
type Notifier struct {
	cfg       config.NotifyConfig
	http      *resty.Client
	errorRepo errorLogRepository
	logger    logrus.FieldLogger
}

func NewNotifier(cfg config.NotifyConfig, errorRepo errorLogRepository) *Notifier {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		cfg:       cfg,
		http:      resty.New().SetTimeout(timeout),
		errorRepo: errorRepo,
		logger:    factory.NewModuleLogger("notifier"),
	}
}

type saleNotification struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	Carrier           string `json:"carrier"`
	ProviderUsed      string `json:"providerUsed"`
	OriginalAmount    string `json:"originalAmount"`
	Bonus             string `json:"bonus"`
	DispatchedAmount  string `json:"dispatchedAmount"`
	CompletedAt       string `json:"completedAt"`
}

// NotifySale tells the analytics service about a fulfilled sale.
func (n *Notifier) NotifySale(ctx context.Context, sale *entity.Sale) {
	if n.cfg.AnalyticsURL == "" {
		return
	}

	providerUsed := ""
	if sale.ProviderUsed != nil {
		providerUsed = *sale.ProviderUsed
	}
	completedAt := ""
	if sale.CompletedAt != nil {
		completedAt = sale.CompletedAt.UTC().Format(time.RFC3339)
	}

	body := &saleNotification{
		CheckoutRequestID: sale.CheckoutRequestID,
		Carrier:           sale.Carrier,
		ProviderUsed:      providerUsed,
		OriginalAmount:    sale.OriginalAmount.String(),
		Bonus:             sale.Bonus.String(),
		DispatchedAmount:  sale.DispatchedAmount.String(),
		CompletedAt:       completedAt,
	}

	resp, err := n.http.R().SetContext(ctx).SetBody(body).Post(n.cfg.AnalyticsURL)
	if err == nil && !resp.IsError() {
		return
	}

	detail := "analytics notification failed"
	if err != nil {
		detail = err.Error()
	} else {
		detail = "analytics endpoint returned status " + resp.Status()
	}
	n.recordFailure(ctx, entity.ErrKindAnalyticsNotification, sale.CheckoutRequestID, detail)
}

// NotifyOfflineFulfillment tells the offline fulfillment service that a
// stuck transaction was re-driven by the reconcile job.
func (n *Notifier) NotifyOfflineFulfillment(ctx context.Context, checkoutRequestID string, status entity.TransactionStatus) {
	if n.cfg.OfflineFulfillmentURL == "" {
		return
	}

	body := map[string]string{
		"checkoutRequestId": checkoutRequestID,
		"status":            string(status),
	}
	resp, err := n.http.R().SetContext(ctx).SetBody(body).Post(n.cfg.OfflineFulfillmentURL)
	if err == nil && !resp.IsError() {
		return
	}

	detail := "offline fulfillment notification failed"
	if err != nil {
		detail = err.Error()
	}
	n.recordFailure(ctx, entity.ErrKindAnalyticsNotification, checkoutRequestID, detail)
}

func (n *Notifier) recordFailure(ctx context.Context, kind, checkoutRequestID, detail string) {
	n.logger.WithFields(logrus.Fields{
		"checkout_request_id": checkoutRequestID,
		"detail":              detail,
	}).Warn("downstream notification failed")

	id := checkoutRequestID
	_ = n.errorRepo.Create(ctx, &entity.ErrorLog{
		Kind:              kind,
		CheckoutRequestID: &id,
		Context:           truncate(detail, 1024),
		CreatedAt:         time.Now().UTC(),
	})
}
