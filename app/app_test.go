package app

import (
	"testing"

	"github.com/Govind-619/paysync/config"
	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/notify"
	"github.com/stretchr/testify/assert"
)

func TestNewGateway(t *testing.T) {
	gw := NewGateway(&config.Config{GatewayProvider: "http", GatewayBaseURL: "https://gateway.example.com"})
	assert.IsType(t, &gateway.HTTPClient{}, gw)

	gw = NewGateway(&config.Config{GatewayProvider: "razorpay", RazorpayKey: "rzp_test", RazorpaySecret: "secret"})
	assert.IsType(t, &gateway.RazorpayClient{}, gw)
}

func TestNewDispatcher(t *testing.T) {
	assert.IsType(t, notify.LogDispatcher{}, NewDispatcher(&config.Config{}))
	assert.IsType(t, &notify.EmailDispatcher{}, NewDispatcher(&config.Config{SMTPHost: "smtp.example.com", SMTPPort: 587}))
}
