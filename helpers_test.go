package issuance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"goflare.io/issuance/config"
	"goflare.io/issuance/coupon"
	"goflare.io/issuance/coupon/coupontest"
	"goflare.io/issuance/event"
	"goflare.io/issuance/metrics"
	"goflare.io/issuance/models"
	"goflare.io/issuance/webhook"
)

const testWebhookSecret = "whsec_test"

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) Capture(_ context.Context, err error, _ ...zap.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) Flush() {}

func (s *recordingSink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ShutdownTimeout: 5 * time.Second},
		Events: config.EventsConfig{Driver: "memory", Subject: "coupon.webhook"},
		Gateway: config.GatewayConfig{
			Timeout:          time.Second,
			AcceptedStatuses: []string{"authorized", "captured"},
		},
		Worker: config.WorkerConfig{Workers: 4, QueueSize: 100, ProcessTimeout: 5 * time.Second},
	}
}

type fixture struct {
	store   *coupontest.Store
	sink    *recordingSink
	gateway *mockGateway
	redis   *miniredis.Miniredis
	issuer  *CouponIssuer
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, cfg *config.Config, codes ...string) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := coupontest.NewStore(codes...)
	sink := &recordingSink{}
	gw := &mockGateway{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	engine := NewEngine(store, sink, m, logger)
	events := event.NewService(event.NewRepository(client, time.Hour, logger), logger)

	issuer, err := NewCouponIssuer(cfg, engine, store,
		coupon.NewCache(client, time.Hour), events, gw,
		webhook.NewRazorpay(testWebhookSecret), nil, sink, m, logger)
	require.NoError(t, err)
	t.Cleanup(issuer.Close)

	return &fixture{store: store, sink: sink, gateway: gw, redis: mr, issuer: issuer, reg: reg}
}

func razorpayDelivery(eventType, paymentID, eventID string) *models.Delivery {
	payload := []byte(`{"entity":"event","event":"` + eventType + `","payload":{"payment":{"entity":{"id":"` +
		paymentID + `","status":"authorized"}}}}`)
	header := map[string]string{}
	if eventID != "" {
		header[webhook.RazorpayEventIDHeader] = eventID
	}
	return &models.Delivery{
		Provider:   webhook.ProviderRazorpay,
		Payload:    payload,
		Header:     header,
		ReceivedAt: time.Now(),
	}
}

// eventCounts returns coupon_webhook_events_total keyed by "type/outcome".
func (f *fixture) eventCounts(t *testing.T) map[string]float64 {
	t.Helper()
	families, err := f.reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "coupon_webhook_events_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			counts[labels["type"]+"/"+labels["outcome"]] = metric.GetCounter().GetValue()
		}
	}
	return counts
}
