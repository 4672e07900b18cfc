package orders

const (
	TopicOrderPlaced   = "order.placed"
	TopicStockDepleted = "product.stock.depleted"
)

// Partition key = order_id for order events and product_id for product
// events, so each entity's events stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
