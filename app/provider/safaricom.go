package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/credential"
	"github.com/sokofone/ms-go-airtime/app/entity"
	"github.com/sokofone/ms-go-airtime/app/factory"
	"github.com/sokofone/ms-go-airtime/app/phone"
	"github.com/sokofone/ms-go-airtime/config"
)

const (
	dealerTokenCacheKey = "dealer_bearer_token"
	dealerPinCacheKey   = "dealer_service_pin"

	// The PIN can be rotated in the database at any time, so the cache is
	// short-lived.
	dealerPinTTL = 10 * time.Minute
)

var (
	// Transaction references look like R250102.1504.123456 inside the
	// response description.
	dealerTxnPattern = regexp.MustCompile(`R\d{6}\.\d{4}\.\d{6}`)

	dealerBalancePattern = regexp.MustCompile(`New balance is Ksh\.?\s*([0-9,]+(?:\.\d+)?)`)
)

// PinSource supplies the dealer service PIN. The PIN lives in the database so
// operators can rotate it without a deploy.
type PinSource interface {
	ServicePin(ctx context.Context) (string, error)
}

// SafaricomDealer dispatches airtime over the dealer recharge API. Amounts go
// upstream in cents; responses carry the transaction reference and the
// remaining dealer float inside a free-text description.
type SafaricomDealer struct {
	cfg    config.DealerConfig
	http   *resty.Client
	creds  *credential.Cache
	pins   PinSource
	logger logrus.FieldLogger
}

func NewSafaricomDealer(cfg config.DealerConfig, creds *credential.Cache, pins PinSource) *SafaricomDealer {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SafaricomDealer{
		cfg:    cfg,
		http:   resty.New().SetTimeout(timeout),
		creds:  creds,
		pins:   pins,
		logger: factory.NewModuleLogger("dealer-provider"),
	}
}

func (p *SafaricomDealer) Name() string {
	return entity.ProviderDealerDirect
}

func (p *SafaricomDealer) FloatAccount() string {
	return entity.FloatSafaricomDealer
}

type dealerAirtimeRequest struct {
	SenderMsisdn   string `json:"senderMsisdn"`
	ReceiverMsisdn string `json:"receiverMsisdn"`
	Amount         int64  `json:"amount"`
	ServicePin     string `json:"servicePin"`
}

type dealerAirtimeResponse struct {
	ResponseID     string `json:"responseId"`
	ResponseStatus string `json:"responseStatus"`
	ResponseDesc   string `json:"responseDesc"`
}

func (p *SafaricomDealer) Dispatch(ctx context.Context, destinationMsisdn string, amount decimal.Decimal) (*DispatchResult, error) {
	receiver, err := phone.DealerFormat(destinationMsisdn)
	if err != nil {
		return nil, err
	}
	sender, err := phone.DealerFormat(p.cfg.SenderMsisdn)
	if err != nil {
		return nil, fmt.Errorf("dealer sender msisdn: %w", err)
	}

	token, err := p.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	pin, err := p.creds.Get(ctx, dealerPinCacheKey, func(ctx context.Context) (string, time.Duration, error) {
		value, err := p.pins.ServicePin(ctx)
		return value, dealerPinTTL, err
	})
	if err != nil {
		return nil, fmt.Errorf("dealer service pin: %w", err)
	}

	body := &dealerAirtimeRequest{
		SenderMsisdn:   sender,
		ReceiverMsisdn: receiver,
		Amount:         amount.Mul(decimal.NewFromInt(100)).IntPart(),
		ServicePin:     base64.StdEncoding.EncodeToString([]byte(pin)),
	}

	result := &dealerAirtimeResponse{}
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(result).
		SetError(result).
		Post(p.cfg.AirtimeURL)
	if err != nil {
		return nil, fmt.Errorf("dealer airtime request: %w", err)
	}

	if resp.IsError() || result.ResponseStatus != "200" {
		// A stale token gets one forced refresh on the next attempt.
		if resp.StatusCode() == 401 {
			p.creds.Invalidate(dealerTokenCacheKey)
		}
		return nil, fmt.Errorf("%w: dealer status=%d responseStatus=%s desc=%s",
			ErrDispatchFailed, resp.StatusCode(), result.ResponseStatus, result.ResponseDesc)
	}

	out := &DispatchResult{ProviderTxnID: dealerTxnPattern.FindString(result.ResponseDesc)}
	if balance, ok := parseDealerBalance(result.ResponseDesc); ok {
		out.Balance = &balance
	} else {
		p.logger.WithField("response_desc", result.ResponseDesc).
			Warn("dealer response carried no parseable balance")
	}

	return out, nil
}

func (p *SafaricomDealer) bearerToken(ctx context.Context) (string, error) {
	return p.creds.Get(ctx, dealerTokenCacheKey, func(ctx context.Context) (string, time.Duration, error) {
		auth := struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}{}

		resp, err := p.http.R().
			SetContext(ctx).
			SetBasicAuth(p.cfg.ConsumerKey, p.cfg.ConsumerSecret).
			SetFormData(map[string]string{"grant_type": "client_credentials"}).
			SetResult(&auth).
			Post(p.cfg.GrantURL)
		if err != nil {
			return "", 0, fmt.Errorf("dealer token grant: %w", err)
		}
		if resp.IsError() || auth.AccessToken == "" {
			return "", 0, fmt.Errorf("dealer token grant failed: status=%d", resp.StatusCode())
		}

		lifetime := time.Duration(auth.ExpiresIn) * time.Second
		if lifetime <= 0 {
			lifetime = time.Hour
		}
		ttl := lifetime - p.cfg.TokenSafetyMargin
		if ttl <= 0 {
			ttl = lifetime / 2
		}

		return auth.AccessToken, ttl, nil
	})
}

func parseDealerBalance(desc string) (decimal.Decimal, bool) {
	match := dealerBalancePattern.FindStringSubmatch(desc)
	if match == nil {
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(strings.ReplaceAll(match[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return balance, true
}
