package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestRetryDelay(t *testing.T) {
	base := 2000 * time.Millisecond

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{0, 2 * time.Second},
		{-5, 2 * time.Second},
	}

	for _, tt := range tests {
		if got := RetryDelay(base, tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(base, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDeliveryAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"nil headers", nil, 1},
		{"missing header", amqp.Table{}, 1},
		{"int32", amqp.Table{AttemptHeader: int32(3)}, 3},
		{"int64", amqp.Table{AttemptHeader: int64(4)}, 4},
		{"int", amqp.Table{AttemptHeader: 2}, 2},
		{"float64", amqp.Table{AttemptHeader: float64(5)}, 5},
		{"garbage", amqp.Table{AttemptHeader: "many"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeliveryAttempt(tt.headers); got != tt.want {
				t.Errorf("DeliveryAttempt(%v) = %d, want %d", tt.headers, got, tt.want)
			}
		})
	}
}
