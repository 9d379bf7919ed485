package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"healthtrack-backend/pkg/phone"

	"go.uber.org/zap"
)

// SMSSender delivers an OTP to a normalized phone number
type SMSSender interface {
	SendOTP(ctx context.Context, phone, code string, ttl time.Duration) error
}

// noOpSender skips SMS delivery (for local environment)
type noOpSender struct {
	logger *zap.Logger
}

func (n *noOpSender) SendOTP(_ context.Context, to, _ string, ttl time.Duration) error {
	n.logger.Info("skipping otp sms", zap.String("phone", phone.Mask(to)), zap.Duration("ttl", ttl))
	return nil
}

// NewNoOpSender creates a sender that only logs
func NewNoOpSender(logger *zap.Logger) SMSSender {
	return &noOpSender{logger: logger}
}

// httpGatewaySender posts OTP messages to a JSON SMS gateway
type httpGatewaySender struct {
	client    *http.Client
	url       string
	apiKey    string
	brandName string
	logger    *zap.Logger
}

type gatewayRequest struct {
	To      string `json:"to"`
	Brand   string `json:"brand"`
	Message string `json:"message"`
}

func (g *httpGatewaySender) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	body, err := json.Marshal(gatewayRequest{
		To:      to,
		Brand:   g.brandName,
		Message: fmt.Sprintf("%s: your verification code is %s. It expires in %d minutes.", g.brandName, code, int(ttl.Minutes())),
	})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send OTP via gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	g.logger.Info("otp sms sent", zap.String("phone", phone.Mask(to)))
	return nil
}

// NewHTTPGatewaySender creates a sender for an HTTP SMS gateway
func NewHTTPGatewaySender(url, apiKey, brandName string, timeout time.Duration, logger *zap.Logger) SMSSender {
	return &httpGatewaySender{
		client:    &http.Client{Timeout: timeout},
		url:       url,
		apiKey:    apiKey,
		brandName: brandName,
		logger:    logger,
	}
}
