package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicStockChanged       = "stock.changed"
)

// Partition key = entity id, so events for one order (or one product)
// keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
