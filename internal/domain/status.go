package domain

import "strings"

type FulfillmentStatus string

const (
	StatusPending  FulfillmentStatus = "PENDING"
	StatusReceived FulfillmentStatus = "RECEIVED"
	StatusPrepping FulfillmentStatus = "PREPPING"
	StatusDone     FulfillmentStatus = "DONE"
)

// fulfillmentTransitions lists the only legal next state for each status.
var fulfillmentTransitions = map[FulfillmentStatus]FulfillmentStatus{
	StatusPending:  StatusReceived,
	StatusReceived: StatusPrepping,
	StatusPrepping: StatusDone,
}

func ParseFulfillmentStatus(raw string) (FulfillmentStatus, bool) {
	status := FulfillmentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusReceived, StatusPrepping, StatusDone:
		return status, true
	}
	return "", false
}

func (s FulfillmentStatus) CanTransitionTo(next FulfillmentStatus) bool {
	allowed, ok := fulfillmentTransitions[s]
	return ok && allowed == next
}
