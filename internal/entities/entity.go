package entities

import (
	"fmt"
	"strings"
	"time"
)

// Type identifies one of the tracked submission kinds.
type Type string

const (
	TypeContact              Type = "contact"
	TypePropertyInquiry      Type = "property-inquiry"
	TypeInsuranceQuote       Type = "insurance-quote"
	TypeHomeImprovementQuote Type = "home-improvement-quote"
	TypeAppointment          Type = "appointment"
	TypeJobApplication       Type = "job-application"
	TypeAgentApplication     Type = "agent-application"
)

// StatusNew is the implicit status of a freshly submitted item across all entity types.
const StatusNew = "new"

// StatusPending marks an item a staff member has opened but not yet handled.
const StatusPending = "pending"

// Key references an item unambiguously. Raw ids may collide across entity
// types, so every lookup keyed on an item uses the (type, id) pair.
type Key struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.ID
}

// NotificationItem is the tagged union produced by the per-type mappers.
// Timestamp is the entity creation time and never changes after submission;
// status transitions do not touch it.
type NotificationItem struct {
	Type      Type      `json:"type"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Route     string    `json:"route"`
	IsRead    bool      `json:"is_read"`
}

// Key returns the composite reference for the item.
func (n NotificationItem) Key() Key {
	return Key{Type: n.Type, ID: n.ID}
}

// Descriptor captures everything the service knows about one entity type.
// Each type owns its own status vocabulary; there is no shared enum beyond
// the "new" and "pending" states every type starts from.
type Descriptor struct {
	Type     Type
	APIPath  string // plural path segment on the backend API
	Route    string // dashboard management page path segment
	Statuses []string
	Map      MapFunc
}

// ValidStatus reports whether the supplied status belongs to this type's vocabulary.
func (d Descriptor) ValidStatus(status string) bool {
	status = strings.TrimSpace(status)
	for _, s := range d.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// DashboardURL builds the management-page target for an item of this type.
func (d Descriptor) DashboardURL(id string) string {
	return fmt.Sprintf("/dashboard/%s?id=%s", d.Route, id)
}

// Registry holds the descriptors for every tracked entity type in a fixed order.
type Registry struct {
	order       []Type
	descriptors map[Type]Descriptor
}

// NewRegistry builds the default registry covering all seven entity types.
// Adding an eighth type is a single additional register call.
func NewRegistry() *Registry {
	r := &Registry{descriptors: make(map[Type]Descriptor)}

	r.register(Descriptor{
		Type:     TypeContact,
		APIPath:  "contacts",
		Route:    "contacts",
		Statuses: []string{"new", "pending", "responded", "closed"},
		Map:      mapContact,
	})
	r.register(Descriptor{
		Type:     TypePropertyInquiry,
		APIPath:  "property-inquiries",
		Route:    "property-inquiries",
		Statuses: []string{"new", "pending", "responded", "closed"},
		Map:      mapPropertyInquiry,
	})
	r.register(Descriptor{
		Type:     TypeInsuranceQuote,
		APIPath:  "insurance-quotes",
		Route:    "insurance-quotes",
		Statuses: []string{"new", "pending", "quoted", "closed"},
		Map:      mapInsuranceQuote,
	})
	r.register(Descriptor{
		Type:     TypeHomeImprovementQuote,
		APIPath:  "home-improvement-quotes",
		Route:    "home-improvement-quotes",
		Statuses: []string{"new", "pending", "quoted", "closed"},
		Map:      mapHomeImprovementQuote,
	})
	r.register(Descriptor{
		Type:     TypeAppointment,
		APIPath:  "appointments",
		Route:    "appointments",
		Statuses: []string{"new", "pending", "confirmed", "completed", "cancelled"},
		Map:      mapAppointment,
	})
	r.register(Descriptor{
		Type:     TypeJobApplication,
		APIPath:  "job-applications",
		Route:    "job-applications",
		Statuses: []string{"new", "pending", "reviewed", "accepted", "rejected"},
		Map:      mapJobApplication,
	})
	r.register(Descriptor{
		Type:     TypeAgentApplication,
		APIPath:  "agent-applications",
		Route:    "agent-applications",
		Statuses: []string{"new", "pending", "reviewed", "accepted", "rejected"},
		Map:      mapAgentApplication,
	})

	return r
}

func (r *Registry) register(d Descriptor) {
	if _, exists := r.descriptors[d.Type]; !exists {
		r.order = append(r.order, d.Type)
	}
	r.descriptors[d.Type] = d
}

// Lookup returns the descriptor for the supplied type.
func (r *Registry) Lookup(t Type) (Descriptor, bool) {
	d, ok := r.descriptors[t]
	return d, ok
}

// Parse resolves a raw string into a registered type.
func (r *Registry) Parse(raw string) (Descriptor, error) {
	d, ok := r.descriptors[Type(strings.TrimSpace(raw))]
	if !ok {
		return Descriptor{}, fmt.Errorf("entities: unknown entity type %q", raw)
	}
	return d, nil
}

// All returns descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.descriptors[t])
	}
	return out
}

// Len reports how many entity types are registered.
func (r *Registry) Len() int {
	return len(r.order)
}
