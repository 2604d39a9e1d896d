// Package payhere implements the wire format of the PayHere checkout
// gateway: order identifiers, the MD5 integrity hash, the outbound checkout
// payload and the inbound notify callback.
package payhere

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway status codes reported in the notify callback.
const (
	StatusSuccess     = 2
	StatusPending     = 0
	StatusCanceled    = -1
	StatusFailed      = -2
	StatusChargedBack = -3
)

const (
	LiveCheckoutURL    = "https://www.payhere.lk/pay/checkout"
	SandboxCheckoutURL = "https://sandbox.payhere.lk/pay/checkout"

	orderPrefix = "APP"
)

var (
	ErrMalformedOrderID      = errors.New("malformed order id")
	ErrSignatureMismatch     = errors.New("signature mismatch")
	ErrMalformedNotification = errors.New("malformed notification")
)

var orderIDPattern = regexp.MustCompile(`^` + orderPrefix + `_(\d+)_(\d+)$`)

// Credentials identify the merchant account. Secret never leaves the
// process; only its digest takes part in the hash.
type Credentials struct {
	MerchantID string
	Secret     string
	Currency   string
}

// FormatAmount renders amount the way the gateway hashes it: two decimals,
// no grouping.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// OrderID encodes an appointment and one of its payments.
func OrderID(appointmentID, paymentID uint64) string {
	return fmt.Sprintf("%s_%d_%d", orderPrefix, appointmentID, paymentID)
}

// ParseOrderID recovers the ids encoded by OrderID.
func ParseOrderID(orderID string) (appointmentID, paymentID uint64, err error) {
	m := orderIDPattern.FindStringSubmatch(orderID)
	if m == nil {
		return 0, 0, ErrMalformedOrderID
	}
	appointmentID, err = strconv.ParseUint(m[1], 10, 64)
	if err != nil || appointmentID == 0 {
		return 0, 0, ErrMalformedOrderID
	}
	paymentID, err = strconv.ParseUint(m[2], 10, 64)
	if err != nil || paymentID == 0 {
		return 0, 0, ErrMalformedOrderID
	}
	return appointmentID, paymentID, nil
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Sign computes UPPER(MD5(merchant_id + order_id + amount + currency +
// UPPER(MD5(secret)))) with amount in its two-decimal form.
func (c Credentials) Sign(orderID string, amount decimal.Decimal) string {
	return md5Upper(c.MerchantID + orderID + FormatAmount(amount) + c.Currency + md5Upper(c.Secret))
}

// Verify recomputes the hash and compares it with sig, ignoring case.
func (c Credentials) Verify(sig, orderID string, amount decimal.Decimal) bool {
	want := c.Sign(orderID, amount)
	got := strings.ToUpper(strings.TrimSpace(sig))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Authenticate verifies the notification signature against its own order
// id and amount.
func (c Credentials) Authenticate(n Notification) error {
	if !c.Verify(n.Signature, n.OrderID, n.Amount) {
		return ErrSignatureMismatch
	}
	return nil
}

// Notification is the form-encoded body PayHere posts to notify_url.
type Notification struct {
	MerchantID string
	OrderID    string
	PaymentID  string
	Amount     decimal.Decimal
	Currency   string
	StatusCode int
	Signature  string
}

// Succeeded reports whether the gateway captured the funds.
func (n Notification) Succeeded() bool { return n.StatusCode == StatusSuccess }

// ParseNotification reads the callback fields. It checks presence and
// shape only; authenticity is checked by Credentials.Verify.
func ParseNotification(form url.Values) (Notification, error) {
	n := Notification{
		MerchantID: strings.TrimSpace(form.Get("merchant_id")),
		OrderID:    strings.TrimSpace(form.Get("order_id")),
		PaymentID:  strings.TrimSpace(form.Get("payment_id")),
		Currency:   strings.TrimSpace(form.Get("payhere_currency")),
		Signature:  strings.TrimSpace(form.Get("md5sig")),
	}
	rawAmount := strings.TrimSpace(form.Get("payhere_amount"))
	if n.OrderID == "" || rawAmount == "" || n.Signature == "" {
		return Notification{}, fmt.Errorf("%w: order_id, payhere_amount and md5sig are required", ErrMalformedNotification)
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: payhere_amount %q", ErrMalformedNotification, rawAmount)
	}
	n.Amount = amount
	code, err := strconv.Atoi(strings.TrimSpace(form.Get("status_code")))
	if err != nil {
		return Notification{}, fmt.Errorf("%w: status_code %q", ErrMalformedNotification, form.Get("status_code"))
	}
	n.StatusCode = code
	return n, nil
}

// Checkout is the payload the browser submits to the gateway's checkout
// page. Field names are the gateway's form names.
type Checkout struct {
	CheckoutURL string `json:"checkout_url"`
	MerchantID  string `json:"merchant_id"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
	NotifyURL   string `json:"notify_url"`
	OrderID     string `json:"order_id"`
	Items       string `json:"items"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Hash        string `json:"hash"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Country     string `json:"country"`
}
