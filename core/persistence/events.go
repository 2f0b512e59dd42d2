package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/asaidimu/go-crud/core"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation names a façade operation in events.
type Operation string

const (
	OpCreate           Operation = "create"
	OpGet              Operation = "get"
	OpGetMulti         Operation = "get_multi"
	OpGetMultiByCursor Operation = "get_multi_by_cursor"
	OpGetJoined        Operation = "get_joined"
	OpGetMultiJoined   Operation = "get_multi_joined"
	OpExists           Operation = "exists"
	OpCount            Operation = "count"
	OpUpdate           Operation = "update"
	OpDelete           Operation = "delete"
	OpDBDelete         Operation = "db_delete"
	OpUpsertMulti      Operation = "upsert_multi"
)

// Phase is the stage of an operation an event reports.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseSuccess Phase = "success"
	PhaseFailed  Phase = "failed"
)

// OperationEventType is the bus topic of an event, e.g. "update:failed".
type OperationEventType string

// EventFor returns the topic of an operation phase.
func EventFor(op Operation, phase Phase) OperationEventType {
	return OperationEventType(string(op) + ":" + string(phase))
}

// OperationEvent is emitted around every façade operation.
type OperationEvent struct {
	Type      OperationEventType `json:"type"`
	Timestamp int64              `json:"timestamp"`
	Operation Operation          `json:"operation"`
	Model     string             `json:"model"`
	Input     any                `json:"input,omitempty"`
	Output    any                `json:"output,omitempty"`
	Error     *string            `json:"error,omitempty"`
	Issues    []core.Issue       `json:"issues,omitempty"`
	Query     any                `json:"query,omitempty"`
	// Duration is in milliseconds and set on success and failure events.
	Duration *int64 `json:"duration,omitempty"`
}

// EventCallbackFunction handles a delivered event.
type EventCallbackFunction func(ctx context.Context, event OperationEvent) error

// RegisterSubscriptionOptions describes a subscription to one event topic.
type RegisterSubscriptionOptions struct {
	Event       OperationEventType
	Label       *string
	Description *string
	Callback    EventCallbackFunction
}

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	ID          string             `json:"id"`
	Event       OperationEventType `json:"event"`
	Label       *string            `json:"label,omitempty"`
	Description *string            `json:"description,omitempty"`
	Unsubscribe func()             `json:"-"`
}

func (c *CRUD) emitEvent(event OperationEvent) {
	if c.bus != nil && c.options.EmitEvents {
		c.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success and failure events.
func withEventEmission[T any](c *CRUD, op Operation, input any, queryParam any, fn func() (T, error)) (T, error) {
	startTime := time.Now()
	c.emitEvent(createEvent(EventFor(op, PhaseStart), op, c.model.Name, input, nil, queryParam, nil, nil, time.Time{}))

	result, err := fn()
	if err != nil {
		errStr := err.Error()
		var issues []core.Issue
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			issues = verr.Issues
		}
		c.logger.Debug("Operation failed", zap.String("operation", string(op)), zap.String("model", c.model.Name), zap.Error(err))
		c.emitEvent(createEvent(EventFor(op, PhaseFailed), op, c.model.Name, input, nil, queryParam, &errStr, issues, startTime))
		var zero T
		return zero, err
	}

	c.emitEvent(createEvent(EventFor(op, PhaseSuccess), op, c.model.Name, input, result, queryParam, nil, nil, startTime))
	return result, nil
}

// RegisterSubscription subscribes a callback to an event topic and returns the
// subscription id.
func (c *CRUD) RegisterSubscription(options RegisterSubscriptionOptions) string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	unsubscribe := c.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	c.subscriptions[id] = &SubscriptionInfo{
		ID:          id,
		Event:       options.Event,
		Label:       options.Label,
		Description: options.Description,
		Unsubscribe: unsubscribe,
	}
	return id
}

// UnregisterSubscription removes a subscription. Unknown ids are ignored.
func (c *CRUD) UnregisterSubscription(id string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	info := c.subscriptions[id]
	if info != nil {
		info.Unsubscribe()
		delete(c.subscriptions, id)
	}
}

// Subscriptions lists the registered subscriptions ordered by id.
func (c *CRUD) Subscriptions() []SubscriptionInfo {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]SubscriptionInfo, 0, len(c.subscriptions))
	for _, info := range c.subscriptions {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close drops every subscription and stops the event bus workers. Operations keep
// working afterwards but emit nothing.
func (c *CRUD) Close() error {
	c.subMu.Lock()
	for id, info := range c.subscriptions {
		info.Unsubscribe()
		delete(c.subscriptions, id)
	}
	c.subMu.Unlock()
	if err := c.bus.Close(); err != nil {
		return fmt.Errorf("failed to close %s event bus: %w", c.model.Name, err)
	}
	return nil
}
