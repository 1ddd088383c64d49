package x402

import (
	"math/big"
	"sync"
)

// PaymentRecorder collects payment events emitted by a Transport
type PaymentRecorder struct {
	mu     sync.RWMutex
	events []PaymentEvent
}

// NewPaymentRecorder creates a new payment recorder
func NewPaymentRecorder() *PaymentRecorder {
	return &PaymentRecorder{
		events: make([]PaymentEvent, 0),
	}
}

// Record records a payment event
func (r *PaymentRecorder) Record(event PaymentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// PaymentCount returns the number of recorded events of any type
func (r *PaymentRecorder) PaymentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// LastPayment returns a copy of the most recent event, or nil
func (r *PaymentRecorder) LastPayment() *PaymentEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.events) == 0 {
		return nil
	}

	last := copyEvent(r.events[len(r.events)-1])
	return &last
}

func copyEvent(e PaymentEvent) PaymentEvent {
	if e.Amount != nil {
		e.Amount = new(big.Int).Set(e.Amount)
	}
	return e
}

func (r *PaymentRecorder) filter(t PaymentEventType) []PaymentEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PaymentEvent
	for _, event := range r.events {
		if event.Type == t {
			out = append(out, copyEvent(event))
		}
	}
	return out
}

// GetEvents returns copies of every recorded event
func (r *PaymentRecorder) GetEvents() []PaymentEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]PaymentEvent, len(r.events))
	for i, event := range r.events {
		events[i] = copyEvent(event)
	}
	return events
}

// Clear clears all recorded events
func (r *PaymentRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make([]PaymentEvent, 0)
}

// SuccessfulPayments returns only success events
func (r *PaymentRecorder) SuccessfulPayments() []PaymentEvent {
	return r.filter(PaymentEventSuccess)
}

// FailedPayments returns only failure events
func (r *PaymentRecorder) FailedPayments() []PaymentEvent {
	return r.filter(PaymentEventFailure)
}

// TotalAmount returns the total amount of all successful payments
func (r *PaymentRecorder) TotalAmount() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := big.NewInt(0)
	for _, event := range r.events {
		if event.Type == PaymentEventSuccess && event.Amount != nil {
			total.Add(total, event.Amount)
		}
	}
	return total.String()
}
