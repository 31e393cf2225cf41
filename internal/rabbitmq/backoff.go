package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AttemptHeader carries the delivery attempt number across redeliveries.
// The broker's bookkeeping stays authoritative; item records only mirror it.
const AttemptHeader = "x-attempt"

// RetryDelay returns the exponential backoff delay before the given failed
// attempt is redelivered: base, 2*base, 4*base, ...
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// DeliveryAttempt extracts the attempt number from message headers.
// A missing or malformed header means the first attempt.
func DeliveryAttempt(headers amqp.Table) int {
	if headers == nil {
		return 1
	}

	switch v := headers[AttemptHeader].(type) {
	case int:
		if v >= 1 {
			return v
		}
	case int32:
		if v >= 1 {
			return int(v)
		}
	case int64:
		if v >= 1 {
			return int(v)
		}
	case float64:
		if v >= 1 {
			return int(v)
		}
	}

	return 1
}
