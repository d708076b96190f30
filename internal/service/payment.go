package service

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// BuildUPIURI returns the upi://pay link encoded in the payment QR.
// The amount is included only when price starts with a plain number.
func BuildUPIURI(upiID, payeeName, price string) (string, error) {
	upiID = strings.TrimSpace(upiID)
	if upiID == "" || !strings.Contains(upiID, "@") || strings.ContainsAny(upiID, "&?=# ") {
		return "", fmt.Errorf("%w: invalid upi id %q", ErrEncoding, upiID)
	}

	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(upiID)
	if payeeName != "" {
		b.WriteString("&pn=")
		b.WriteString(strings.ReplaceAll(url.QueryEscape(payeeName), "+", "%20"))
	}
	if amount, ok := parseAmount(price); ok {
		b.WriteString("&am=")
		b.WriteString(amount)
	}
	b.WriteString("&cu=INR")
	return b.String(), nil
}

func parseAmount(price string) (string, bool) {
	fields := strings.Fields(price)
	if len(fields) == 0 {
		return "", false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || v <= 0 {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', 2, 64), true
}

// RenderQR encodes a payment URI as a PNG.
func RenderQR(uri string) ([]byte, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty payment uri", ErrEncoding)
	}

	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	var buf bytes.Buffer
	if err := qr.Write(qrSize, &buf); err != nil {
		return nil, fmt.Errorf("%w: write png: %v", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}
