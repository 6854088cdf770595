package rabbitmq

// Имена exchange и ключей маршрутизации событий подписки.
const (
	ExchangeSubscriptions        = "subscriptions"
	RoutingKeySubscriptionUpdate = "subscription.updated"
)

// QueueConfig описывает очередь и ключ, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetSubscriptionQueues возвращает очереди, которые сервис объявляет при старте.
func GetSubscriptionQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "subscription.updated", RoutingKey: RoutingKeySubscriptionUpdate},
	}
}
