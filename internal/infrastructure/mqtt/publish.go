package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps a single message at 1MB, in line with broker defaults.
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic and waits for the
// broker acknowledgement (QoS 1/2) up to a fixed timeout.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (devices must tolerate duplicates)
//   - 2: Exactly once
//
// Example:
//
//	topic := mqtt.Topics{}.RSUDown("ESN0001", mqtt.SegmentConfig)
//	err := client.Publish(topic, payload, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token, err := c.send(topic, payload, qos, retained)
	if err != nil {
		return err
	}
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAsync hands a non-retained message at the configured QoS to paho
// and returns without waiting for the broker acknowledgement. A late or
// failed delivery is logged.
//
// Message handlers must use it: they run on paho's delivery goroutine,
// which is also what reads the acknowledgement Publish would wait for.
func (c *Client) PublishAsync(topic string, payload []byte) error {
	token, err := c.send(topic, payload, byte(c.cfg.QoS), false)
	if err != nil {
		return err
	}
	go c.watch(topic, token)
	return nil
}

// send validates a publish and passes it to paho.
func (c *Client) send(topic string, payload []byte, qos byte, retained bool) (pahomqtt.Token, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if qos > maxQoS {
		return nil, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	return c.client.Publish(topic, qos, retained, payload), nil
}

func (c *Client) watch(topic string, token pahomqtt.Token) {
	timer := time.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-token.Done():
		err = token.Error()
	case <-timer.C:
		err = fmt.Errorf("timeout after %v", defaultPublishTimeout)
	}
	if err == nil {
		return
	}
	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT async publish failed", "topic", topic, "error", err)
	}
}

// PublishDefault publishes a non-retained message at the configured QoS.
func (c *Client) PublishDefault(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), false)
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}
