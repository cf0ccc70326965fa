// Package broker correlates quote requests from clients with answers
// from resolvers connected over WebSocket.
package broker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/majorswap/relayer/internal/storage"
	"github.com/majorswap/relayer/pkg/logging"
)

// TimeoutMessage is sent to the client when no resolver answers in time.
const TimeoutMessage = "Quote request timed out"

// ErrValidation is returned when a quote request is missing fields.
var ErrValidation = errors.New("invalid quote request")

// Conn is a client connection the broker can push events to.
type Conn interface {
	ID() string
	Send(event string, payload interface{}) error
}

// Broadcaster delivers an event to every connected resolver.
type Broadcaster interface {
	BroadcastResolvers(event string, payload interface{})
}

// QuoteStore persists accepted quotes.
type QuoteStore interface {
	CreateQuote(q *storage.Quote) error
}

// QuoteRequest is a client's request for pricing.
type QuoteRequest struct {
	FromChain string `json:"fromChain"`
	ToChain   string `json:"toChain"`
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	Amount    string `json:"amount"`
}

// Validate checks that all required fields are present.
func (r *QuoteRequest) Validate() error {
	fields := map[string]string{
		"fromChain": r.FromChain,
		"toChain":   r.ToChain,
		"fromToken": r.FromToken,
		"toToken":   r.ToToken,
		"amount":    r.Amount,
	}
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("%w: missing %s", ErrValidation, name)
		}
	}
	return nil
}

// BroadcastRequest is the quote request as forwarded to resolvers.
type BroadcastRequest struct {
	RequestID string `json:"requestId"`
	ClientID  string `json:"clientId"`
	QuoteRequest
}

// QuoteResponse is the single terminal answer for a quote request, in
// both directions: a resolver prices the request or declines it with
// Error and Message set, and the client receives the same shape for
// priced answers, resolver declines, and timeouts.
type QuoteResponse struct {
	RequestID       string `json:"requestId"`
	OrderID         string `json:"orderId,omitempty"`
	FromChain       string `json:"fromChain,omitempty"`
	ToChain         string `json:"toChain,omitempty"`
	FromToken       string `json:"fromToken,omitempty"`
	ToToken         string `json:"toToken,omitempty"`
	Amount          string `json:"amount,omitempty"`
	FromChainAmount string `json:"fromChainAmount,omitempty"`
	Error           bool   `json:"error,omitempty"`
	Message         string `json:"message,omitempty"`
}

// errAnswer builds an error-terminal quote response.
func errAnswer(requestID, message string) *QuoteResponse {
	return &QuoteResponse{RequestID: requestID, Error: true, Message: message}
}

type pendingRequest struct {
	clientID string
	conn     Conn
	timer    *time.Timer
}

// Broker tracks in-flight quote requests and routes resolver answers
// back to the requesting client. The first answer for a request wins;
// later answers and answers after timeout are dropped.
type Broker struct {
	mu        sync.Mutex
	pending   map[string]*pendingRequest
	timeout   time.Duration
	resolvers Broadcaster
	store     QuoteStore
	log       *logging.Logger
}

// New creates a quote broker. The store may be nil, in which case
// accepted quotes are not persisted.
func New(timeout time.Duration, store QuoteStore) *Broker {
	return &Broker{
		pending: make(map[string]*pendingRequest),
		timeout: timeout,
		store:   store,
		log:     logging.GetDefault().Component("broker"),
	}
}

// SetResolvers installs the resolver broadcast sink.
func (b *Broker) SetResolvers(r Broadcaster) {
	b.resolvers = r
}

// SubmitQuoteRequest validates a request, registers it, and broadcasts
// it to resolvers. Returns the generated request ID.
func (b *Broker) SubmitQuoteRequest(conn Conn, req *QuoteRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	requestID := uuid.New().String()

	b.mu.Lock()
	b.pending[requestID] = &pendingRequest{
		clientID: conn.ID(),
		conn:     conn,
		timer:    time.AfterFunc(b.timeout, func() { b.expire(requestID) }),
	}
	b.mu.Unlock()

	b.log.Info("Quote request", "requestId", requestID, "client", conn.ID(),
		"fromChain", req.FromChain, "toChain", req.ToChain, "amount", req.Amount)

	if b.resolvers != nil {
		b.resolvers.BroadcastResolvers(EventQuoteRequest, &BroadcastRequest{
			RequestID:    requestID,
			ClientID:     conn.ID(),
			QuoteRequest: *req,
		})
	}

	return requestID, nil
}

// HandleResolverResponse routes a resolver's answer to the waiting
// client. Returns false when the request is unknown, already answered,
// or timed out.
func (b *Broker) HandleResolverResponse(resp *QuoteResponse) bool {
	b.mu.Lock()
	p, ok := b.pending[resp.RequestID]
	if ok {
		delete(b.pending, resp.RequestID)
	}
	b.mu.Unlock()

	if !ok {
		b.log.Debug("Dropping resolver answer for unknown request", "requestId", resp.RequestID)
		return false
	}
	p.timer.Stop()

	if resp.Error {
		b.log.Info("Resolver declined request", "requestId", resp.RequestID, "message", resp.Message)
		if resp.Message == "" {
			resp.Message = "Resolver rejected the quote request"
		}
		b.deliver(p, resp)
		return true
	}

	if resp.FromChainAmount == "" {
		b.log.Warn("Resolver answer missing fromChainAmount", "requestId", resp.RequestID)
		b.deliver(p, errAnswer(resp.RequestID, "Resolver response missing fromChainAmount"))
		return true
	}

	if resp.OrderID == "" {
		resp.OrderID = uuid.New().String()
	}

	if b.store != nil {
		err := b.store.CreateQuote(&storage.Quote{
			ID:              resp.OrderID,
			FromChain:       resp.FromChain,
			ToChain:         resp.ToChain,
			FromToken:       resp.FromToken,
			ToToken:         resp.ToToken,
			Amount:          resp.Amount,
			FromChainAmount: resp.FromChainAmount,
		})
		if err != nil {
			b.log.Error("Failed to persist quote", "orderId", resp.OrderID, "error", err)
		}
	}

	b.deliver(p, resp)
	return true
}

// deliver pushes the terminal quote-response to the waiting client.
func (b *Broker) deliver(p *pendingRequest, resp *QuoteResponse) {
	if err := p.conn.Send(EventQuoteResponse, resp); err != nil {
		b.log.Warn("Failed to deliver quote response", "requestId", resp.RequestID, "error", err)
	}
}

// DisconnectClient drops all pending requests belonging to a client.
func (b *Broker) DisconnectClient(clientID string) {
	b.mu.Lock()
	var dropped []*pendingRequest
	for id, p := range b.pending {
		if p.clientID == clientID {
			dropped = append(dropped, p)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, p := range dropped {
		p.timer.Stop()
	}
	if len(dropped) > 0 {
		b.log.Debug("Dropped pending requests on disconnect", "client", clientID, "count", len(dropped))
	}
}

// PendingCount returns the number of in-flight quote requests.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) expire(requestID string) {
	b.mu.Lock()
	p, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	b.log.Info("Quote request timed out", "requestId", requestID, "client", p.clientID)
	b.deliver(p, errAnswer(requestID, TimeoutMessage))
}
