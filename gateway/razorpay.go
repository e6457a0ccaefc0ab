package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
)

const (
	razorpayBaseURL = "https://api.razorpay.com/v1"
	defaultTimeout  = 5 * time.Second
)

type razorpayPayment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type Razorpay struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	keySecret  string
	logger     *zap.Logger
}

func NewRazorpay(cfg Config, logger *zap.Logger) *Razorpay {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = razorpayBaseURL
	}
	return &Razorpay{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		logger:     logger.Named("gateway.razorpay"),
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	endpoint := fmt.Sprintf("%s/payments/%s", r.baseURL, url.PathEscape(paymentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build razorpay request: %w", err)
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch razorpay payment: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read razorpay response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		var apiErr razorpayError
		_ = json.Unmarshal(body, &apiErr)
		r.logger.Info("razorpay rejected payment lookup",
			zap.String("payment_id", paymentID),
			zap.Int("status", resp.StatusCode),
			zap.String("description", apiErr.Error.Description))
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	default:
		return nil, fmt.Errorf("razorpay responded %d", resp.StatusCode)
	}

	var p razorpayPayment
	if err = json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode razorpay payment: %w", err)
	}

	return &models.Payment{
		ID:        p.ID,
		Status:    enum.ParsePaymentStatus(p.Status),
		Amount:    p.Amount,
		RawStatus: p.Status,
	}, nil
}
