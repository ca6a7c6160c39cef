package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Gateway is one of the two external payment processors.
type Gateway string

const (
	GatewayPaystack    Gateway = "paystack"
	GatewayFlutterwave Gateway = "flutterwave"
)

func (g Gateway) Valid() bool {
	return g == GatewayPaystack || g == GatewayFlutterwave
}

func (g Gateway) String() string { return string(g) }

func (g Gateway) initiatePath() string {
	if g == GatewayFlutterwave {
		return "/payments/flutterwave/initiate/"
	}
	return "/payments/initiate/"
}

func (g Gateway) verifyPath(reference string) (path, endpoint string) {
	ref := url.PathEscape(reference)
	if g == GatewayFlutterwave {
		return "/payments/flutterwave/verify/" + ref + "/", "/payments/flutterwave/verify/{ref}/"
	}
	return "/payments/verify/" + ref + "/", "/payments/verify/{ref}/"
}

type InitiateRequest struct {
	ItemType  string
	ItemID    int64
	Amount    decimal.Decimal
	Currency  string
	PromoCode string
	Meta      map[string]any
}

// payload flattens Meta into the top-level body, the shape the initiate endpoints expect.
func (r InitiateRequest) payload() map[string]any {
	p := make(map[string]any, len(r.Meta)+5)
	for k, v := range r.Meta {
		p[k] = v
	}
	p["item_type"] = r.ItemType
	p["item_id"] = r.ItemID
	p["amount"] = r.Amount.InexactFloat64()
	p["currency"] = r.Currency
	if r.PromoCode != "" {
		p["promo_code"] = r.PromoCode
	}
	return p
}

type InitiateResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	Link             string `json:"link"`
}

// HostedURL is the full-page redirect target, if the gateway returned one.
func (r InitiateResponse) HostedURL() string {
	if r.AuthorizationURL != "" {
		return r.AuthorizationURL
	}
	return r.Link
}

// VerifyResponse keeps the whole payload; receipt fields vary per item kind.
type VerifyResponse struct {
	Status string
	Raw    map[string]any
}

func (v VerifyResponse) Succeeded() bool { return v.Status == "success" }

// HasDiploma reports whether the payload carries a diploma receipt.
func (v VerifyResponse) HasDiploma() bool {
	d, ok := v.Raw["diploma"]
	return ok && d != nil
}

type SplitConfig struct {
	TutorShare       decimal.Decimal `json:"tutor_share"`
	InstitutionShare decimal.Decimal `json:"institution_share"`
}

type PromoRequest struct {
	Code        string          `json:"code"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentType string          `json:"payment_type"`
}

type PromoResult struct {
	Valid    bool            `json:"valid"`
	Discount decimal.Decimal `json:"discount"`
	NewTotal decimal.Decimal `json:"new_total"`
	Promo    struct {
		Code string `json:"code"`
	} `json:"promo"`
}

type ActivationFee struct {
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
}

type PaymentRecord map[string]any

func (c *Client) InitiatePayment(ctx context.Context, token string, gw Gateway, req InitiateRequest) (InitiateResponse, error) {
	var out InitiateResponse
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   gw.initiatePath(),
		token:  token,
		body:   req.payload(),
	}, &out)
	if err == nil && out.Reference == "" {
		return out, &Error{Kind: KindServer, Message: "Failed to initiate payment"}
	}
	return out, err
}

func (c *Client) VerifyPayment(ctx context.Context, token string, gw Gateway, reference string) (VerifyResponse, error) {
	path, endpoint := gw.verifyPath(reference)
	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     path,
		endpoint: endpoint,
		token:    token,
	})
	if err != nil {
		return VerifyResponse{}, err
	}
	out := VerifyResponse{Raw: map[string]any{}}
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &out.Raw); err != nil {
			return VerifyResponse{}, &Error{Kind: KindServer, Message: "unexpected verification response", Err: err}
		}
	}
	if s, ok := out.Raw["status"].(string); ok {
		out.Status = s
	}
	return out, nil
}

func (c *Client) SplitConfig(ctx context.Context, token string) (SplitConfig, error) {
	var out SplitConfig
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   "/payments/admin/split-config/",
		token:  token,
	}, &out)
	return out, err
}

func (c *Client) ApplyPromo(ctx context.Context, token string, req PromoRequest, meta map[string]any) (PromoResult, error) {
	body := map[string]any{}
	for k, v := range meta {
		body[k] = v
	}
	body["code"] = req.Code
	body["total_amount"] = req.TotalAmount.InexactFloat64()
	body["payment_type"] = req.PaymentType

	var out PromoResult
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/promos/promocodes/apply/",
		token:  token,
		body:   body,
	}, &out)
	return out, err
}

func (c *Client) ActivationFee(ctx context.Context, token, activationType string, examID, subjectID int64) (ActivationFee, error) {
	q := url.Values{}
	q.Set("type", activationType)
	if examID > 0 {
		q.Set("exam", strconv.FormatInt(examID, 10))
	}
	if subjectID > 0 {
		q.Set("subject", strconv.FormatInt(subjectID, 10))
	}
	var out ActivationFee
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   "/payments/activation-fee/",
		token:  token,
		query:  q,
	}, &out)
	return out, err
}

func (c *Client) PaymentHistory(ctx context.Context, token string, page, pageSize int) (Page[PaymentRecord], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/payments/",
		token:  token,
		query:  q,
	})
	if err != nil {
		return Page[PaymentRecord]{}, err
	}
	return DecodeList[PaymentRecord](body)
}
