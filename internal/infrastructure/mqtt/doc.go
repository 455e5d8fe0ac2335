// Package mqtt provides the MQTT transport for the RSU fleet.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with single-level wildcards
//   - A retained node status topic backed by a Last Will
//   - The V2X topic scheme shared by devices, edge nodes and this node
//
// # Architecture
//
// Devices and edge nodes reach this node only through the broker:
//
//	RSUs ↔ Broker ↔ Fleet Core ↔ (edge mode) Upstream Broker ↔ Cloud
//
// The client delivers inbound messages in order on one goroutine per
// connection. The router built on top of it relies on that: handlers run
// synchronously and never concurrently with each other.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.RSUHeartbeatUp(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
//	client.Publish(mqtt.Topics{}.RSUDown("ESN0001", mqtt.SegmentConfig), payload, 1, false)
package mqtt
