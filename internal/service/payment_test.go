package service_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-access-bot/internal/service"
)

func TestBuildUPIURI(t *testing.T) {
	tests := []struct {
		name  string
		upiID string
		payee string
		price string
		want  string
	}{
		{"plain amount", "shop@upi", "VIP Shop", "199", "upi://pay?pa=shop@upi&pn=VIP%20Shop&am=199.00&cu=INR"},
		{"amount with currency", "shop@upi", "", "49.5 INR", "upi://pay?pa=shop@upi&am=49.50&cu=INR"},
		{"free-form price", "shop@upi", "A&B", "ask admin", "upi://pay?pa=shop@upi&pn=A%26B&cu=INR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.BuildUPIURI(tt.upiID, tt.payee, tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildUPIURIRejectsBadID(t *testing.T) {
	for _, id := range []string{"", "noat", "a@b&am=1", "a b@upi"} {
		_, err := service.BuildUPIURI(id, "x", "1")
		assert.ErrorIs(t, err, service.ErrEncoding, id)
	}
}

func TestRenderQR(t *testing.T) {
	png, err := service.RenderQR("upi://pay?pa=shop@upi&cu=INR")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = service.RenderQR("")
	assert.ErrorIs(t, err, service.ErrEncoding)
}
