package persistence

import (
	"time"

	"github.com/asaidimu/go-crud/core"
)

func createEvent(
	eventType OperationEventType,
	operation Operation,
	model string,
	input any,
	output any,
	query any,
	err *string,
	issues []core.Issue,
	startTime time.Time,
) OperationEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	return OperationEvent{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Operation: operation,
		Model:     model,
		Input:     input,
		Output:    output,
		Error:     err,
		Issues:    issues,
		Query:     query,
		Duration:  duration,
	}
}
