package payments

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

type stubRefunder struct {
	result RefundResult
	called bool
}

func (s *stubRefunder) Refund(ctx context.Context, req RefundRequest) RefundResult {
	s.called = true
	return s.result
}

func refundReq(gateway Gateway, amount string) RefundRequest {
	return RefundRequest{
		Payment: &Payment{
			ID:               7,
			TenantID:         "t-1",
			Gateway:          gateway,
			GatewayPaymentID: "pi_123",
			Status:           StatusCompleted,
		},
		Amount: decimal.RequireFromString(amount),
	}
}

func TestExecutorDispatchesByGateway(t *testing.T) {
	stripe := &stubRefunder{result: RefundResult{Success: true, RefundID: "re_1"}}
	vipps := &stubRefunder{result: RefundResult{ErrorMessage: "manual"}}
	exec := NewExecutor(stripe, vipps, nil)

	res := exec.Refund(context.Background(), refundReq(GatewayStripe, "250.00"))
	if !stripe.called || !res.Success || res.RefundID != "re_1" {
		t.Fatalf("stripe dispatch failed: %+v", res)
	}
	if res.Method != MethodStripe {
		t.Fatalf("expected stripe method, got %q", res.Method)
	}

	res = exec.Refund(context.Background(), refundReq(GatewayVipps, "250.00"))
	if !vipps.called || res.Success {
		t.Fatalf("expected vipps failure result, got %+v", res)
	}
	if res.Method != MethodVipps {
		t.Fatalf("expected vipps method, got %q", res.Method)
	}
}

// A Stripe payment without a recorded payment intent cannot be refunded
// through the API; it is settled by hand like a cash payment.
func TestExecutorStripeWithoutPaymentIntentIsManual(t *testing.T) {
	stripe := &stubRefunder{result: RefundResult{Success: true, RefundID: "re_1"}}
	exec := NewExecutor(stripe, nil, nil)

	req := refundReq(GatewayStripe, "100.00")
	req.Payment.GatewayPaymentID = ""

	res := exec.Refund(context.Background(), req)
	if stripe.called {
		t.Fatal("stripe refunder must not be called without a payment intent")
	}
	if !res.Success || res.Method != MethodManual {
		t.Fatalf("expected manual success, got %+v", res)
	}
}

func TestExecutorManualGatewaysSucceedImmediately(t *testing.T) {
	exec := NewExecutor(nil, nil, nil)
	for _, g := range []Gateway{GatewayCash, GatewayCard, GatewayManual} {
		res := exec.Refund(context.Background(), refundReq(g, "100.00"))
		if !res.Success {
			t.Fatalf("gateway %s: expected immediate success, got %+v", g, res)
		}
		if res.Method != MethodManual {
			t.Fatalf("gateway %s: expected manual method, got %q", g, res.Method)
		}
		if !strings.HasPrefix(res.RefundID, "manual-") {
			t.Fatalf("gateway %s: unexpected refund id %q", g, res.RefundID)
		}
	}
}

func TestExecutorMissingRefunderIsFailureNotPanic(t *testing.T) {
	exec := NewExecutor(nil, nil, nil)
	res := exec.Refund(context.Background(), refundReq(GatewayStripe, "100.00"))
	if res.Success || res.ErrorMessage == "" {
		t.Fatalf("expected structured failure, got %+v", res)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount string
		want   int64
	}{
		{"250.00", 25000},
		{"250", 25000},
		{"0.50", 50},
		{"99.99", 9999},
		{"250.005", 25001},
	}
	for _, tc := range cases {
		if got := minorUnits(decimal.RequireFromString(tc.amount)); got != tc.want {
			t.Errorf("minorUnits(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestVippsRefunderReportsManualFollowUp(t *testing.T) {
	v := NewVippsRefunder(nil)
	res := v.Refund(context.Background(), refundReq(GatewayVipps, "100.00"))
	if res.Success {
		t.Fatal("vipps refunds must not report success")
	}
	if !strings.Contains(res.ErrorMessage, "manually") {
		t.Fatalf("expected manual processing message, got %q", res.ErrorMessage)
	}
}
