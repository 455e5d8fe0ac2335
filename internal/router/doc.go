// Package router dispatches inbound bus messages to typed handlers.
//
// Handlers are registered per topic pattern with Route. A pattern is either
// an exact topic or one with single-level "+" wildcards; the first
// registered pattern that matches a topic wins. The payload is decoded as
// JSON into the handler's message type and validated before the handler
// runs.
//
// Dispatch never returns an error to the transport. A payload that fails to
// decode or validate, a handler error and a handler panic all become a
// Failure: it is logged, counted in Stats and passed to the FailureObserver,
// and the message is dropped. Nothing is retried.
//
// Usage:
//
//	r := router.New()
//	router.Route(r, mqtt.Topics{}.RSUHeartbeatUp(), func(ctx context.Context, topic string, hb protocol.Heartbeat) error {
//	    return tracker.TouchRSU(ctx, hb.ESN)
//	})
//	if err := r.Attach(ctx, mqttClient, 1); err != nil {
//	    return err
//	}
package router
