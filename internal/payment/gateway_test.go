package payment

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := NewGateway(Config{
		TmnCode:    "HAPPYCAT",
		HashSecret: "secret",
		PayURL:     "https://sandbox.example.com/paymentv2/vpcpay.html",
		ReturnURL:  "https://app.example.com/api/payments/return",
		Now:        func() time.Time { return time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return g
}

// signedReturn simulates the gateway echoing the request params back.
func signedReturn(g *Gateway, params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = v
	}
	out.Set("vnp_SecureHash", g.sign(canonical(params)))
	out.Set("vnp_SecureHashType", "HmacSHA512")
	return out
}

func TestBuildURLSignsSortedParams(t *testing.T) {
	g := newTestGateway(t)

	raw, err := g.BuildURL(Request{TxnRef: "ORDER1", Amount: 99000, OrderInfo: "Premium plan", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "https://sandbox.example.com/paymentv2/vpcpay.html?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "9900000", q.Get("vnp_Amount"))
	require.Equal(t, "20240501100000", q.Get("vnp_CreateDate"))
	require.Equal(t, "20240501101500", q.Get("vnp_ExpireDate"))
	require.Equal(t, "Premium plan", q.Get("vnp_OrderInfo"))

	hash := q.Get("vnp_SecureHash")
	q.Del("vnp_SecureHash")
	require.Equal(t, g.sign(canonical(q)), hash)
}

func TestBuildURLValidates(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.BuildURL(Request{Amount: 10})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = g.BuildURL(Request{TxnRef: "x"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestVerifyAcceptsValidReturn(t *testing.T) {
	g := newTestGateway(t)
	params := url.Values{
		"vnp_TmnCode":           {"HAPPYCAT"},
		"vnp_Amount":            {"9900000"},
		"vnp_TxnRef":            {"ORDER1"},
		"vnp_ResponseCode":      {"00"},
		"vnp_TransactionStatus": {"00"},
		"vnp_TransactionNo":     {"14000001"},
		"vnp_OrderInfo":         {"Premium plan"},
	}

	res, err := g.Verify(signedReturn(g, params))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(99000), res.Amount)
	require.Equal(t, "ORDER1", res.TxnRef)
	require.Equal(t, "14000001", res.TransactionNo)
}

func TestVerifyReportsFailedPayment(t *testing.T) {
	g := newTestGateway(t)
	params := url.Values{
		"vnp_TmnCode":      {"HAPPYCAT"},
		"vnp_Amount":       {"100"},
		"vnp_TxnRef":       {"ORDER2"},
		"vnp_ResponseCode": {"24"},
	}

	res, err := g.Verify(signedReturn(g, params))
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "24", res.ResponseCode)
}

func TestVerifyRejectsTampering(t *testing.T) {
	g := newTestGateway(t)
	params := url.Values{
		"vnp_TmnCode":      {"HAPPYCAT"},
		"vnp_Amount":       {"100"},
		"vnp_TxnRef":       {"ORDER3"},
		"vnp_ResponseCode": {"00"},
	}
	signed := signedReturn(g, params)
	signed.Set("vnp_Amount", "1")

	_, err := g.Verify(signed)
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = g.Verify(params)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestNewGatewayRequiresCredentials(t *testing.T) {
	_, err := NewGateway(Config{PayURL: "https://x"})
	require.Error(t, err)
}
