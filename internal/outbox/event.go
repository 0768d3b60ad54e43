package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	TopicBookingConfirmed   = "scheduling.booking.confirmed.v1"
	TopicBookingCancelled   = "scheduling.booking.cancelled.v1"
	TopicBookingRescheduled = "scheduling.booking.rescheduled.v1"
	TopicCommitmentCreate   = "calendar.commitment.create.v1"
)
