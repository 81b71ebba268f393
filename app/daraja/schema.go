// Package daraja is the client for the payment rail: STK push collections,
// transaction reversals, and the callback payloads the rail posts back.
package daraja

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	customerPayBillOnline = "CustomerPayBillOnline"
	commandReversal       = "TransactionReversal"

	// Paybill receivers use identifier type 11. The misspelled JSON key is
	// the rail's, not ours.
	receiverIdentifierTypePaybill = "11"
)

// STKPushRequest is the push-to-pay payload. Password is
// base64(shortcode + passkey + timestamp), timestamp is YYYYMMDDHHMMSS.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse acknowledges a push submission. ResponseCode "0" means the
// rail accepted the request; CheckoutRequestID becomes the canonical
// transaction key.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode,omitempty"`
	ErrorMessage        string `json:"errorMessage,omitempty"`
}

// Accepted reports whether the rail accepted the push submission.
func (r *STKPushResponse) Accepted() bool {
	return r != nil && r.ResponseCode == "0" && strings.TrimSpace(r.CheckoutRequestID) != ""
}

// CallbackItem is one entry of the metadata array. Values arrive as strings
// or numbers depending on the field, so the raw value is kept loose.
type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// STKCallback is the inner payment-result payload. CallbackMetadata is only
// present on success and items may be missing; use the accessors.
type STKCallback struct {
	MerchantRequestID string           `json:"MerchantRequestID"`
	CheckoutRequestID string           `json:"CheckoutRequestID"`
	ResultCode        int              `json:"ResultCode"`
	ResultDesc        string           `json:"ResultDesc"`
	CallbackMetadata  CallbackMetadata `json:"CallbackMetadata"`
}

// STKCallbackEnvelope is the body posted to the payment-result endpoint.
type STKCallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

func (c *STKCallback) item(name string) (interface{}, bool) {
	for _, item := range c.CallbackMetadata.Item {
		if item.Name == name {
			return item.Value, item.Value != nil
		}
	}
	return nil, false
}

// ReceiptNumber returns the payment receipt, empty when absent.
func (c *STKCallback) ReceiptNumber() string {
	value, ok := c.item("MpesaReceiptNumber")
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// Amount returns the collected amount, zero when absent or unparseable.
func (c *STKCallback) Amount() decimal.Decimal {
	value, ok := c.item("Amount")
	if !ok {
		return decimal.Zero
	}
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// PayerMsisdn returns the paying phone number, empty when absent.
func (c *STKCallback) PayerMsisdn() string {
	value, ok := c.item("PhoneNumber")
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	}
	return ""
}

// ReversalRequest asks the rail to refund a collected payment.
type ReversalRequest struct {
	Initiator              string `json:"Initiator"`
	SecurityCredential     string `json:"SecurityCredential"`
	CommandID              string `json:"CommandID"`
	TransactionID          string `json:"TransactionID"`
	Amount                 int64  `json:"Amount"`
	ReceiverParty          string `json:"ReceiverParty"`
	RecieverIdentifierType string `json:"RecieverIdentifierType"`
	QueueTimeOutURL        string `json:"QueueTimeOutURL"`
	ResultURL              string `json:"ResultURL"`
	Remarks                string `json:"Remarks"`
	Occasion               string `json:"Occasion"`
}

// ReversalResponse acknowledges a reversal submission.
type ReversalResponse struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
	ErrorCode                string `json:"errorCode,omitempty"`
	ErrorMessage             string `json:"errorMessage,omitempty"`
}

// Accepted reports whether the rail queued the reversal.
func (r *ReversalResponse) Accepted() bool {
	return r != nil && r.ResponseCode == "0"
}

// ReversalResult is the inner payload of the reversal-result callback.
type ReversalResult struct {
	ResultType               int    `json:"ResultType"`
	ResultCode               int    `json:"ResultCode"`
	ResultDesc               string `json:"ResultDesc"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	TransactionID            string `json:"TransactionID"`
}

// ReversalResultEnvelope is the body posted to the reversal-result and
// reversal-timeout endpoints.
type ReversalResultEnvelope struct {
	Result ReversalResult `json:"Result"`
}

// CallbackAck is what every callback endpoint returns. The rail retries on
// anything other than ResultCode 0, so inner failures never change it.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// AuthResponse is the OAuth client-credentials grant response. ExpiresIn is
// seconds, delivered as a string.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}
