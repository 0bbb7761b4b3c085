// Package realtime is the composition root of a ledpush client.
//
// New builds, from one config.Config, a connection.Manager over the configured
// transport (STOMP over WebSocket, or NATS), a processor.Processor with an
// in-memory or Redis dedup store, and a subscription.Manager, then wires them:
//
//   - every valid inbound message goes to the processor, which drops
//     duplicates and expired messages before dispatching to handlers
//   - every transition into connected restores subscriptions and creates
//     missing auto subscriptions for the current user
//   - route changes from a signals.Source release the subscriptions of the
//     page being left
//
// Typical use:
//
//	client, err := realtime.New(cfg, realtime.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer client.Close(5 * time.Second)
//
//	client.Processor().RegisterMessageHandler(message.TypeNotification, notify)
//	if err := client.Start(ctx); err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err // reconnection is already scheduled
//	}
//	client.SetUser(&subscription.User{UID: 7, OID: 3})
//
// Acknowledge sends {"messageId", "acknowledgedAt"} to the configured ack
// destination for messages that carry requireAck, retrying transient failures,
// and only then flags the cached entry.
package realtime
