package orders

// All lifecycle events share one topic; the envelope's event_type
// discriminates. Partition key = order_id so events for one order keep
// their order.
const TopicOrderLifecycle = "order.lifecycle"

func PartitionKey(orderID string) []byte { return []byte(orderID) }
