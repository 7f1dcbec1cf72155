// Package mqtt wraps paho.mqtt.golang with HavenSync-specific functionality.
//
// The broker is the always-on transport between the core and physical
// switch units. Units subscribe to their own command topic and publish
// status to a shared hierarchy that the core watches with a wildcard.
//
// # Topic Scheme
//
//	devices/{deviceId}/commands   core -> unit (command records)
//	havensync/{deviceId}/status   unit -> core (status events)
//	havensync/system/status       core online/offline status (retained, LWT)
//
// # Features
//
//   - Connection management with automatic reconnection
//   - Subscription tracking and restoration on reconnect
//   - Last Will and Testament for offline detection
//   - Panic recovery in message handlers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.AllDeviceStatuses(), 1,
//	    func(topic string, payload []byte) error {
//	        // handle status event
//	        return nil
//	    })
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package mqtt
