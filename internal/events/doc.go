// Package events carries pipeline notifications over a message bus.
//
// Status changes and processing requests are published as Events. Inbound
// consumers are wrapped in a RetryingConsumer, which republishes a failed
// event to the "<topic>-retry" topic with an incremented retry count and,
// once the count reaches its ceiling, moves it to the "<topic>-dlq" topic
// annotated with the failure reason. Delivery is at least once; handlers
// must be idempotent.
package events
