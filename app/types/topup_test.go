package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func TestNewTopupInitiationRequestFromContextKeepsRawPayload(t *testing.T) {
	e := echo.New()
	body := `{"phoneNumber":" 0700000001 ","recipient":"0712345678","amount":100}`
	req := httptest.NewRequest("POST", "/stk-push", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewTopupInitiationRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.PhoneNumber != "0700000001" {
		t.Fatalf("expected trimmed phone number, got %q", parsed.PhoneNumber)
	}
	if parsed.Amount != 100 {
		t.Fatalf("expected amount 100, got %d", parsed.Amount)
	}
	if parsed.RawPayload != body {
		t.Fatalf("expected raw payload preserved, got %q", parsed.RawPayload)
	}
}

func TestTopupInitiationValidate(t *testing.T) {
	req := &TopupInitiationRequest{}
	if err := req.Validate(); err == nil {
		t.Fatal("expected phoneNumber validation error")
	}

	req = &TopupInitiationRequest{PhoneNumber: "0700000001", Recipient: "0712345678"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected amount validation error")
	}

	req.Amount = 100
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewGetTransactionStatusRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/transaction-status/ws_CO_1", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("ws_CO_1")

	parsed, err := NewGetTransactionStatusRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.CheckoutRequestID != "ws_CO_1" {
		t.Fatalf("unexpected id parse: %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	empty := &GetTransactionStatusRequest{}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected id validation error")
	}
}

func TestUpdateBonusValidate(t *testing.T) {
	req := &UpdateBonusRequest{
		SafaricomPercentage:      decimal.NewFromInt(-1),
		AfricastalkingPercentage: decimal.NewFromInt(3),
		Actor:                    "ops@example.com",
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected negative percentage validation error")
	}

	req.SafaricomPercentage = decimal.NewFromInt(5)
	req.Actor = ""
	if err := req.Validate(); err == nil {
		t.Fatal("expected actor validation error")
	}

	req.Actor = "ops@example.com"
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewSTKCallbackFromContext(t *testing.T) {
	e := echo.New()
	body := `{"Body":{"stkCallback":{"MerchantRequestID":"mer-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"Amount","Value":100},{"Name":"MpesaReceiptNumber","Value":"QK123"}]}}}}`
	req := httptest.NewRequest("POST", "/stk-callback", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	cb, err := NewSTKCallbackFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cb.CheckoutRequestID != "ws_CO_1" {
		t.Fatalf("unexpected checkout request id %q", cb.CheckoutRequestID)
	}
	if cb.ReceiptNumber() != "QK123" {
		t.Fatalf("unexpected receipt %q", cb.ReceiptNumber())
	}
	if !cb.Amount().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected amount %s", cb.Amount())
	}
}

func TestNewSTKCallbackFromContextRejectsEmptyID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/stk-callback", bytes.NewBufferString(`{"Body":{"stkCallback":{}}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if _, err := NewSTKCallbackFromContext(ctx); err == nil {
		t.Fatal("expected missing CheckoutRequestID error")
	}
}

func TestNewReversalResultFromContext(t *testing.T) {
	e := echo.New()
	body := `{"Result":{"ResultType":0,"ResultCode":0,"ResultDesc":"ok","OriginatorConversationID":"orig-1","ConversationID":"conv-1","TransactionID":"QK123"}}`
	req := httptest.NewRequest("POST", "/daraja-reversal-result", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	result, err := NewReversalResultFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.OriginatorConversationID != "orig-1" {
		t.Fatalf("unexpected originator %q", result.OriginatorConversationID)
	}
}
