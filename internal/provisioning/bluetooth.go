package provisioning

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BluetoothCentral implements Central on top of tinygo.org/x/bluetooth.
//
// The wrapper stays thin: it adapts the adapter's callback-driven scan
// to the Central contract and resolves GATT handles. All session logic
// lives in the Engine.
type BluetoothCentral struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	results map[string]bluetooth.Address // peripheral address cache by string form
}

// NewBluetoothCentral wraps the platform default BLE adapter.
func NewBluetoothCentral() *BluetoothCentral {
	return &BluetoothCentral{
		adapter: bluetooth.DefaultAdapter,
		results: make(map[string]bluetooth.Address),
	}
}

// Enable powers on the radio.
func (b *BluetoothCentral) Enable() error {
	return b.adapter.Enable()
}

// Scan sweeps for advertisements until StopScan or ctx cancellation.
func (b *BluetoothCentral) Scan(ctx context.Context, onDiscovered func(Peripheral)) error {
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case <-ctx.Done():
			// Scan blocks until StopScan; unblock it on cancellation.
			_ = b.adapter.StopScan()
		case <-stop:
		}
	}()
	defer once.Do(func() { close(stop) })

	return b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()

		b.mu.Lock()
		b.results[addr] = result.Address
		b.mu.Unlock()

		onDiscovered(Peripheral{
			Name:    result.LocalName(),
			Address: addr,
		})
	})
}

// StopScan ends an in-progress scan.
func (b *BluetoothCentral) StopScan() error {
	return b.adapter.StopScan()
}

// Connect establishes a connection to a previously discovered peripheral.
func (b *BluetoothCentral) Connect(ctx context.Context, p Peripheral) (Conn, error) {
	b.mu.Lock()
	addr, ok := b.results[p.Address]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("peripheral %s not seen in last scan", p.Address)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	device, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}

	return &bluetoothConn{device: device}, nil
}

// bluetoothConn adapts a connected bluetooth.Device to the Conn
// interface.
type bluetoothConn struct {
	device bluetooth.Device
}

// Characteristic discovers the given service and characteristic.
func (c *bluetoothConn) Characteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid service uuid: %w", ErrServiceNotFound, err)
	}
	chUUID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid characteristic uuid: %w", ErrCharacteristicNotFound, err)
	}

	services, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceUUID)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{chUUID})
	if err != nil || len(chars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, charUUID)
	}

	return &bluetoothCharacteristic{char: chars[0]}, nil
}

// Disconnect tears down the connection.
func (c *bluetoothConn) Disconnect() error {
	return c.device.Disconnect()
}

// bluetoothCharacteristic adapts a DeviceCharacteristic to the
// Characteristic interface.
type bluetoothCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

// Write delivers the full payload as a without-response write, which
// is the only write path the library's Linux GATT client exposes. The
// reported length is checked against the payload.
func (w *bluetoothCharacteristic) Write(data []byte) error {
	n, err := w.char.WriteWithoutResponse(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return nil
}
