package provisioning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
)

// fakeCentral implements Central for engine tests.
type fakeCentral struct {
	enableErr   error
	advertised  []Peripheral
	connectErr  error
	conn        *fakeConn
	scanStopped chan struct{}
}

func newFakeCentral() *fakeCentral {
	return &fakeCentral{
		conn:        &fakeConn{char: &fakeCharacteristic{}},
		scanStopped: make(chan struct{}, 4),
	}
}

func (f *fakeCentral) Enable() error { return f.enableErr }

func (f *fakeCentral) Scan(ctx context.Context, onDiscovered func(Peripheral)) error {
	for _, p := range f.advertised {
		onDiscovered(p)
	}
	// Block like a real scan until stopped or cancelled.
	select {
	case <-ctx.Done():
	case <-f.scanStopped:
	}
	return nil
}

func (f *fakeCentral) StopScan() error {
	f.scanStopped <- struct{}{}
	return nil
}

func (f *fakeCentral) Connect(ctx context.Context, p Peripheral) (Conn, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.conn, nil
}

type fakeConn struct {
	charErr      error
	char         *fakeCharacteristic
	disconnected bool
}

func (f *fakeConn) Characteristic(serviceUUID, charUUID string) (Characteristic, error) {
	if f.charErr != nil {
		return nil, f.charErr
	}
	return f.char, nil
}

func (f *fakeConn) Disconnect() error {
	f.disconnected = true
	return nil
}

type fakeCharacteristic struct {
	written  []byte
	writeErr error
	// delay simulates a slow write before the error surfaces.
	delay time.Duration
}

func (f *fakeCharacteristic) Write(data []byte) error {
	f.written = data
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.writeErr
}

func testBLEConfig() config.BLEConfig {
	return config.BLEConfig{ScanTimeout: 1, ConnectTimeout: 1, RebootGrace: 2}
}

func testCredentials() Credentials {
	return Credentials{
		SSID:     "HomeNet",
		Password: "hunter22",
		DeviceID: "hexa5chn-a1b2c3",
		UserID:   "user-1",
	}
}

func TestProvision_Success(t *testing.T) {
	central := newFakeCentral()
	central.advertised = []Peripheral{
		{Name: "SomeOtherDevice", Address: "aa"},
		{Name: "HEXA5CHN-A1B2C3", Address: "bb"},
	}

	engine := NewEngine(central, testBLEConfig())

	result, err := engine.Provision(context.Background(), testCredentials())
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if !result.CredentialsDelivered {
		t.Error("CredentialsDelivered = false, want true")
	}
	if result.Peripheral.Address != "bb" {
		t.Errorf("matched peripheral %q, want bb", result.Peripheral.Address)
	}
	if !central.conn.disconnected {
		t.Error("connection should be torn down after the session")
	}
	if engine.Session().State != StateDone {
		t.Errorf("session state = %v, want done", engine.Session().State)
	}

	// The payload must be base64-wrapped JSON with the firmware's field names.
	decoded, err := base64.StdEncoding.DecodeString(string(central.conn.char.written))
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(decoded, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := map[string]string{
		"ssid": "HomeNet", "password": "hunter22",
		"deviceId": "hexa5chn-a1b2c3", "userId": "user-1",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestProvision_WriteFailureInsideGraceWindowIsDelivery(t *testing.T) {
	central := newFakeCentral()
	central.advertised = []Peripheral{{Name: "hexa5chn-a1b2c3", Address: "bb"}}
	// A rebooting device drops the link, surfacing as a write error
	// almost immediately.
	central.conn.char.writeErr = errors.New("att: connection terminated")

	engine := NewEngine(central, testBLEConfig())

	result, err := engine.Provision(context.Background(), testCredentials())
	if err != nil {
		t.Fatalf("Provision() error = %v, want delivery classification", err)
	}
	if !result.CredentialsDelivered {
		t.Error("CredentialsDelivered = false, want true for in-window drop")
	}
}

func TestProvision_PreWriteFailureIsFatal(t *testing.T) {
	central := newFakeCentral()
	central.advertised = []Peripheral{{Name: "hexa5chn-a1b2c3", Address: "bb"}}
	central.conn.charErr = ErrServiceNotFound

	engine := NewEngine(central, testBLEConfig())

	_, err := engine.Provision(context.Background(), testCredentials())
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("Provision() error = %v, want ErrServiceNotFound", err)
	}
	if engine.Session().State != StateFailed {
		t.Errorf("session state = %v, want failed", engine.Session().State)
	}
}

func TestProvision_ScanTimeout(t *testing.T) {
	central := newFakeCentral()
	central.advertised = []Peripheral{{Name: "UnrelatedBeacon", Address: "cc"}}

	engine := NewEngine(central, testBLEConfig())

	_, err := engine.Provision(context.Background(), testCredentials())
	if !errors.Is(err, ErrScanTimeout) {
		t.Fatalf("Provision() error = %v, want ErrScanTimeout", err)
	}
}

func TestProvision_RadioUnavailable(t *testing.T) {
	central := newFakeCentral()
	central.enableErr = errors.New("hci device down")

	engine := NewEngine(central, testBLEConfig())

	_, err := engine.Provision(context.Background(), testCredentials())
	if !errors.Is(err, ErrRadioUnavailable) {
		t.Fatalf("Provision() error = %v, want ErrRadioUnavailable", err)
	}
}

func TestProvision_ConnectFailed(t *testing.T) {
	central := newFakeCentral()
	central.advertised = []Peripheral{{Name: "hexa5chn-a1b2c3", Address: "bb"}}
	central.connectErr = errors.New("connection refused")

	engine := NewEngine(central, testBLEConfig())

	_, err := engine.Provision(context.Background(), testCredentials())
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("Provision() error = %v, want ErrConnectFailed", err)
	}
}

func TestProvision_Cancelled(t *testing.T) {
	central := newFakeCentral()
	// No advertisements: the scan would block for the full window.
	engine := NewEngine(central, testBLEConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Provision(ctx, testCredentials())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Provision() error = %v, want context.Canceled", err)
	}
}

func TestProvision_SingleFlight(t *testing.T) {
	central := newFakeCentral()
	engine := NewEngine(central, testBLEConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	done := make(chan struct{})
	engine.SetOnProgress(func(state SessionState, _ string) {
		if state == StateScanning {
			select {
			case <-started:
			default:
				close(started)
			}
		}
	})

	go func() {
		defer close(done)
		_, _ = engine.Provision(ctx, testCredentials())
	}()

	<-started
	if _, err := engine.Provision(context.Background(), testCredentials()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("concurrent Provision() error = %v, want ErrSessionActive", err)
	}

	cancel()
	<-done
}

func TestScanReportsEveryAdvertisement(t *testing.T) {
	central := newFakeCentral()
	central.advertised = []Peripheral{
		{Name: "BeaconA", Address: "01"},
		{Name: "", Address: "02"},
		{Name: "hexa3chn-ff", Address: "03"},
	}

	engine := NewEngine(central, testBLEConfig())

	var seen []string
	engine.SetOnDiscovered(func(p Peripheral) {
		seen = append(seen, p.Address)
	})

	if _, err := engine.ScanForDevice(context.Background(), "hexa3chn-ff"); err != nil {
		t.Fatalf("ScanForDevice() error = %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("discovered %d advertisements, want all 3", len(seen))
	}
}
