// Package subscription manages logical subscriptions on top of a
// connection.Manager.
//
// A logical subscription has a stable ID and one transport subscription per
// destination. Subscribing twice to the same destination returns the same ID
// and adds the second callback to its fan-out.
//
// # Lifecycles
//
// Auto subscriptions follow the current user. SetUser with a new user
// subscribes to the personal queue, the organization topic and the system
// topic; SetUser(nil) clears every subscription.
//
// Page subscriptions follow a view. SubscribeForPage ties a subscription to a
// page path and UnsubscribeForPage releases everything the page held, except
// subscriptions still used by another page or owned by the user. WatchRoutes
// does this automatically when a signals.Source reports navigation.
//
// # Reconnects
//
// Transport subscriptions do not survive a lost connection. HandleConnected,
// called on every transition into connected, re-creates them with new handles
// while IDs, callbacks, page associations and auto flags stay as they were,
// then creates any auto subscriptions that were deferred because the user was
// set while disconnected.
//
// # Destinations
//
// Destinations must match /(topic|queue|user)/segment[/segment...], where a
// segment is letters, digits, '_', '.' or '-'. Well-known destinations are
// built from Topics templates such as "/topic/device/{deviceId}" by Render and
// the Subscribe* helpers.
package subscription
