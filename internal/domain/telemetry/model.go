package telemetry

import "context"

const (
	CategoryConversion = "conversion"
	ActionSignUp       = "sign_up"
)

// Event is a single analytics event.
type Event struct {
	Category string `json:"category" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Label    string `json:"label"`
	Value    string `json:"value,omitempty"`
}

// SignUp is emitted once when a profile is provisioned.
func SignUp() Event {
	return Event{
		Category: CategoryConversion,
		Action:   ActionSignUp,
		Label:    "",
	}
}

// Route describes where the user is when an event happens.
type Route struct {
	Location string
	Referrer string
	Title    string
}

// Properties are ambient analytics properties of the client.
type Properties struct {
	ScreenResolution string
	Language         string
}

// Page carries the navigation and telemetry context of a call.
type Page struct {
	Route Route
	Props Properties
}

// Sender emits events. Send is fire-and-forget and never fails the caller.
type Sender interface {
	Send(ctx context.Context, event Event, page Page)
}
