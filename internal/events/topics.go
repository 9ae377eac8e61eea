package events

const (
	TopicOrderCreated    = "storefront.order.created"
	TopicActivityTracked = "storefront.activity.tracked"
)

// Partition key keeps all events for one order (or one assistant session)
// in order on a single partition.
func PartitionKey(id string) []byte { return []byte(id) }
