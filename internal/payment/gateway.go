package payment

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/happycat/pkg/crypto"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

const (
	version        = "2.1.0"
	commandPay     = "pay"
	currencyVND    = "VND"
	dateLayout     = "20060102150405"
	successCode    = "00"
	defaultExpiry  = 15 * time.Minute
	defaultLocale  = "vn"
	orderTypeOther = "other"
)

// ErrInvalidSignature is returned when a gateway callback does not carry a
// valid secure hash.
var ErrInvalidSignature = apperrors.New("INVALID_SIGNATURE", "Invalid payment signature", 400)

// Config holds merchant credentials.
type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Expiry     time.Duration
	// Location is the gateway's wall clock zone. Defaults to UTC+7.
	Location *time.Location
	Now      func() time.Time
}

// Gateway signs outgoing payment redirects and verifies returns.
type Gateway struct {
	cfg Config
}

// NewGateway validates cfg and returns a gateway.
func NewGateway(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.TmnCode) == "" || strings.TrimSpace(cfg.HashSecret) == "" {
		return nil, errors.New("payment: tmn code and hash secret are required")
	}
	if strings.TrimSpace(cfg.PayURL) == "" {
		return nil, errors.New("payment: pay url is required")
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = defaultExpiry
	}
	if cfg.Location == nil {
		cfg.Location = time.FixedZone("ICT", 7*60*60)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gateway{cfg: cfg}, nil
}

// Request describes one checkout.
type Request struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	ClientIP  string
	Locale    string
	BankCode  string
}

// Result is a verified gateway callback.
type Result struct {
	TxnRef        string `json:"txn_ref"`
	Amount        int64  `json:"amount"`
	ResponseCode  string `json:"response_code"`
	TransactionNo string `json:"transaction_no"`
	BankCode      string `json:"bank_code,omitempty"`
	Success       bool   `json:"success"`
}

// BuildURL returns the signed redirect URL for req.
func (g *Gateway) BuildURL(req Request) (string, error) {
	if strings.TrimSpace(req.TxnRef) == "" {
		return "", apperrors.NewBadRequest("transaction reference is required")
	}
	if req.Amount <= 0 {
		return "", apperrors.NewBadRequest("amount must be positive")
	}

	now := g.cfg.Now().In(g.cfg.Location)
	locale := req.Locale
	if locale == "" {
		locale = defaultLocale
	}
	info := req.OrderInfo
	if info == "" {
		info = "Payment for order " + req.TxnRef
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", version)
	params.Set("vnp_Command", commandPay)
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", currencyVND)
	params.Set("vnp_TxnRef", req.TxnRef)
	params.Set("vnp_OrderInfo", info)
	params.Set("vnp_OrderType", orderTypeOther)
	params.Set("vnp_Locale", locale)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", now.Format(dateLayout))
	params.Set("vnp_ExpireDate", now.Add(g.cfg.Expiry).Format(dateLayout))
	if g.cfg.ReturnURL != "" {
		params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	}
	if req.BankCode != "" {
		params.Set("vnp_BankCode", req.BankCode)
	}

	query := canonical(params)
	return fmt.Sprintf("%s?%s&vnp_SecureHash=%s", g.cfg.PayURL, query, g.sign(query)), nil
}

// Verify checks the secure hash of a return or IPN query and decodes it.
// A valid signature with a non-success response code is not an error; the
// caller inspects Result.Success.
func (g *Gateway) Verify(values url.Values) (*Result, error) {
	given := values.Get("vnp_SecureHash")
	if given == "" {
		return nil, ErrInvalidSignature
	}

	params := url.Values{}
	for k, v := range values {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		params[k] = v
	}

	if !crypto.VerifyHMACSHA512(g.cfg.HashSecret, canonical(params), given) {
		return nil, ErrInvalidSignature
	}
	if params.Get("vnp_TmnCode") != g.cfg.TmnCode {
		return nil, ErrInvalidSignature
	}

	amount, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid payment amount")
	}

	code := params.Get("vnp_ResponseCode")
	status := params.Get("vnp_TransactionStatus")
	return &Result{
		TxnRef:        params.Get("vnp_TxnRef"),
		Amount:        amount / 100,
		ResponseCode:  code,
		TransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:      params.Get("vnp_BankCode"),
		Success:       code == successCode && (status == "" || status == successCode),
	}, nil
}

func (g *Gateway) sign(data string) string {
	return crypto.SignHMACSHA512(g.cfg.HashSecret, data)
}

// canonical renders params sorted by key with form encoding, which is the
// string the gateway signs.
func canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}
