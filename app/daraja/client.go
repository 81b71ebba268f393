package daraja

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/sokofone/ms-go-airtime/app/credential"
	"github.com/sokofone/ms-go-airtime/app/factory"
	"github.com/sokofone/ms-go-airtime/config"
)

const (
	oauthPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	reversalPath = "/mpesa/reversal/v1/request"

	tokenCacheKey = "daraja_oauth_token"

	// Shave a minute off the advertised token lifetime so a token never
	// expires mid-request.
	tokenSafetyMargin = time.Minute
)

var (
	ErrPushRejected     = errors.New("stk push rejected by rail")
	ErrReversalRejected = errors.New("reversal rejected by rail")
)

// Client talks to the payment rail.
type Client struct {
	cfg    config.DarajaConfig
	http   *resty.Client
	creds  *credential.Cache
	cert   *rsa.PublicKey
	logger logrus.FieldLogger

	now func() time.Time
}

// NewClient builds a rail client. The reversal certificate is loaded here,
// once; a missing certificate path leaves reversals unavailable but does not
// block collections.
func NewClient(cfg config.DarajaConfig, creds *credential.Cache) (*Client, error) {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var cert *rsa.PublicKey
	if strings.TrimSpace(cfg.CertificatePath) != "" {
		loaded, err := LoadCertificate(cfg.CertificatePath)
		if err != nil {
			return nil, err
		}
		cert = loaded
	}

	return &Client{
		cfg:    cfg,
		http:   resty.New().SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).SetTimeout(timeout),
		creds:  creds,
		cert:   cert,
		logger: factory.NewModuleLogger("daraja-client"),
		now:    time.Now,
	}, nil
}

// STKPush sends a push-to-pay request. payerMsisdn must be in 2547XXXXXXXX
// form, amount in whole shillings, accountRef is shown on the payer's prompt
// (the destination number).
func (c *Client) STKPush(ctx context.Context, payerMsisdn string, amount int64, accountRef string) (*STKPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format("20060102150405")
	body := &STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   customerPayBillOnline,
		Amount:            amount,
		PartyA:            payerMsisdn,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       payerMsisdn,
		CallBackURL:       strings.TrimRight(c.cfg.CallbackBaseURL, "/") + "/stk-callback",
		AccountReference:  accountRef,
		TransactionDesc:   "Airtime purchase",
	}

	result := &STKPushResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(result).
		SetError(result).
		Post(stkPushPath)
	if err != nil {
		return nil, fmt.Errorf("stk push request: %w", err)
	}

	if resp.IsError() || !result.Accepted() {
		detail := result.ResponseDescription
		if result.ErrorMessage != "" {
			detail = result.ErrorMessage
		}
		return result, fmt.Errorf("%w: status=%d code=%s desc=%s", ErrPushRejected, resp.StatusCode(), result.ResponseCode, detail)
	}

	return result, nil
}

// Reverse asks the rail to refund a collected payment. transactionID is the
// canonical request id of the original collection, amount in whole shillings.
func (c *Client) Reverse(ctx context.Context, transactionID string, amount int64, remarks string) (*ReversalRequest, *ReversalResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	sc, err := securityCredential(c.cert, c.cfg.InitiatorPassword)
	if err != nil {
		return nil, nil, err
	}

	body := &ReversalRequest{
		Initiator:              c.cfg.Initiator,
		SecurityCredential:     sc,
		CommandID:              commandReversal,
		TransactionID:          transactionID,
		Amount:                 amount,
		ReceiverParty:          c.cfg.ShortCode,
		RecieverIdentifierType: receiverIdentifierTypePaybill,
		QueueTimeOutURL:        c.cfg.ReversalTimeoutURL,
		ResultURL:              c.cfg.ReversalResultURL,
		Remarks:                remarks,
		Occasion:               transactionID,
	}

	result := &ReversalResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(result).
		SetError(result).
		Post(reversalPath)
	if err != nil {
		return body, nil, fmt.Errorf("reversal request: %w", err)
	}

	if resp.IsError() || !result.Accepted() {
		detail := result.ResponseDescription
		if result.ErrorMessage != "" {
			detail = result.ErrorMessage
		}
		return body, result, fmt.Errorf("%w: status=%d code=%s desc=%s", ErrReversalRejected, resp.StatusCode(), result.ResponseCode, detail)
	}

	return body, result, nil
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	return c.creds.Get(ctx, tokenCacheKey, func(ctx context.Context) (string, time.Duration, error) {
		auth := &AuthResponse{}
		resp, err := c.http.R().
			SetContext(ctx).
			SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret).
			SetResult(auth).
			Get(oauthPath)
		if err != nil {
			return "", 0, fmt.Errorf("oauth grant: %w", err)
		}
		if resp.IsError() || auth.AccessToken == "" {
			return "", 0, fmt.Errorf("oauth grant failed: status=%d", resp.StatusCode())
		}

		lifetime := time.Hour
		if seconds, err := strconv.Atoi(auth.ExpiresIn); err == nil && seconds > 0 {
			lifetime = time.Duration(seconds) * time.Second
		}
		ttl := lifetime - tokenSafetyMargin
		if ttl <= 0 {
			ttl = lifetime / 2
		}

		return auth.AccessToken, ttl, nil
	})
}
