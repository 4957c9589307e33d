package transport

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/net/http2"

	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/faults"
)

const (
	nmService          = "org.freedesktop.NetworkManager"
	nmPath             = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface            = "org.freedesktop.NetworkManager"
	nmDeviceIface      = "org.freedesktop.NetworkManager.Device"
	nmWirelessIface    = "org.freedesktop.NetworkManager.Device.Wireless"
	nmAccessPointIface = "org.freedesktop.NetworkManager.AccessPoint"

	nmDeviceTypeWifi       = 2
	nmDeviceStateActivated = 100

	radioActivateTimeout = 30 * time.Second
	radioPollInterval    = 500 * time.Millisecond
	radioScanSettle      = 3 * time.Second
)

// Radio is a Handle backed by the host's Wi-Fi device, managed through
// NetworkManager on the system D-Bus.
type Radio struct {
	conn   *dbus.Conn
	nm     networkManager
	device dbus.ObjectPath
	iface  string
	poll   time.Duration
	logger *slog.Logger
}

// OpenRadio connects to the system bus and picks the Wi-Fi device named
// iface, or the first one when iface is empty.
func OpenRadio(ctx context.Context, iface string) (*Radio, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	device, name, err := findWifiDevice(ctx, conn, iface)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Radio{
		conn:   conn,
		nm:     &dbusNM{conn: conn, device: device},
		device: device,
		iface:  name,
		poll:   radioPollInterval,
		logger: transportLogger(KindNativeRadio, "interface", name),
	}, nil
}

func findWifiDevice(ctx context.Context, conn *dbus.Conn, want string) (dbus.ObjectPath, string, error) {
	var devices []dbus.ObjectPath
	if err := conn.Object(nmService, nmPath).CallWithContext(ctx, nmIface+".GetDevices", 0).Store(&devices); err != nil {
		return "", "", fmt.Errorf("list network devices: %w", err)
	}

	for _, path := range devices {
		obj := conn.Object(nmService, path)
		devType, err := obj.GetProperty(nmDeviceIface + ".DeviceType")
		if err != nil || toUint32(devType.Value()) != nmDeviceTypeWifi {
			continue
		}
		name, err := obj.GetProperty(nmDeviceIface + ".Interface")
		if err != nil {
			continue
		}
		ifname, _ := name.Value().(string)
		if want == "" || ifname == want {
			return path, ifname, nil
		}
	}

	if want != "" {
		return "", "", faults.Configuration("open radio", fmt.Sprintf("no Wi-Fi device named %q", want))
	}
	return "", "", faults.Configuration("open radio", "no Wi-Fi device managed by NetworkManager")
}

func (r *Radio) Kind() Kind { return KindNativeRadio }

// Connect activates the saved profile for the SSID, or adds a volatile one
// that NetworkManager forgets once it disconnects, then waits for that
// activation to succeed or fail. Device state is not consulted: it may still
// show the outcome of an earlier attempt.
func (r *Radio) Connect(ctx context.Context, creds config.Credentials) error {
	if creds.SSID == "" {
		return faults.Configuration("connect", "'ssid' is missing from the secrets file")
	}
	op := "join " + creds.SSID

	active, err := r.activate(ctx, creds)
	if err != nil {
		return faults.Connectivity(op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, radioActivateTimeout)
	defer cancel()
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		state, err := r.nm.ActiveState(ctx, active)
		if err != nil {
			return faults.Connectivity(op, fmt.Errorf("activation %s gone: %w", active, err))
		}
		switch state {
		case nmActiveStateActivated:
			r.logger.Info("Joined access point", "ssid", creds.SSID, "connection", active)
			return nil
		case nmActiveStateDeactivated:
			return faults.Connectivity(op, errors.New("activation failed"))
		}

		select {
		case <-ctx.Done():
			return faults.Connectivity(op, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Radio) activate(ctx context.Context, creds config.Credentials) (dbus.ObjectPath, error) {
	profile, err := r.nm.FindProfile(ctx, creds.SSID)
	if err != nil {
		return "", err
	}
	if profile != "" {
		r.logger.Debug("Activating saved profile", "ssid", creds.SSID, "profile", profile)
		return r.nm.Activate(ctx, profile)
	}
	return r.nm.AddAndActivate(ctx, connectionSettings(creds), map[string]dbus.Variant{
		"persist": dbus.MakeVariant("volatile"),
	})
}

// IsConnected reports whether the device is activated on an access point.
func (r *Radio) IsConnected(ctx context.Context) bool {
	state, err := r.nm.DeviceState(ctx)
	if err != nil {
		r.logger.Debug("Device state query failed", "error", err)
		return false
	}
	if state != nmDeviceStateActivated {
		return false
	}
	ap, err := r.nm.ActiveAccessPoint(ctx)
	if err != nil {
		return false
	}
	return ap != "" && ap != "/"
}

// ScanNetworks requests a fresh scan, waits for it to settle and yields the
// access points NetworkManager knows about.
func (r *Radio) ScanNetworks(ctx context.Context) iter.Seq[Network] {
	var used atomic.Bool
	return func(yield func(Network) bool) {
		if used.Swap(true) {
			r.logger.Warn("Network scan sequence reused; it yields only once")
			return
		}

		dev := r.conn.Object(nmService, r.device)
		if err := dev.CallWithContext(ctx, nmWirelessIface+".RequestScan", 0, map[string]dbus.Variant{}).Err; err != nil {
			r.logger.Debug("Scan request rejected, using cached results", "error", err)
		} else {
			select {
			case <-ctx.Done():
				return
			case <-time.After(radioScanSettle):
			}
		}

		var aps []dbus.ObjectPath
		if err := dev.CallWithContext(ctx, nmWirelessIface+".GetAllAccessPoints", 0).Store(&aps); err != nil {
			r.logger.Warn("Network scan failed", "error", err)
			return
		}
		for _, path := range aps {
			n, err := r.accessPoint(path)
			if err != nil {
				r.logger.Debug("Skipping access point", "path", path, "error", err)
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

func (r *Radio) accessPoint(path dbus.ObjectPath) (Network, error) {
	obj := r.conn.Object(nmService, path)
	ssid, err := obj.GetProperty(nmAccessPointIface + ".Ssid")
	if err != nil {
		return Network{}, err
	}
	strength, err := obj.GetProperty(nmAccessPointIface + ".Strength")
	if err != nil {
		return Network{}, err
	}
	freq, err := obj.GetProperty(nmAccessPointIface + ".Frequency")
	if err != nil {
		return Network{}, err
	}
	raw, _ := ssid.Value().([]byte)
	return Network{
		SSID:    string(raw),
		RSSI:    strengthToRSSI(toUint32(strength.Value())),
		Channel: frequencyToChannel(toUint32(freq.Value())),
	}, nil
}

// Identity reports the device's firmware version and hardware address.
func (r *Radio) Identity(_ context.Context) (Identity, error) {
	obj := r.conn.Object(nmService, r.device)
	var id Identity
	if v, err := obj.GetProperty(nmDeviceIface + ".FirmwareVersion"); err == nil {
		id.Firmware, _ = v.Value().(string)
	}
	v, err := obj.GetProperty(nmWirelessIface + ".HwAddress")
	if err != nil {
		return id, err
	}
	id.MAC, _ = v.Value().(string)
	return id, nil
}

// NewHTTPClient returns an HTTP/2-capable client using the host network
// stack.
func (r *Radio) NewHTTPClient() *http.Client {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if _, err := http2.ConfigureTransports(t); err != nil {
		r.logger.Warn("HTTP/2 unavailable, using HTTP/1.1", "error", err)
	}
	return &http.Client{Transport: t}
}

// Close closes the private D-Bus connection.
func (r *Radio) Close() error {
	return r.conn.Close()
}

// connectionSettings builds the a{sa{sv}} profile for AddAndActivateConnection2.
func connectionSettings(creds config.Credentials) map[string]map[string]dbus.Variant {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant(creds.SSID),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(creds.SSID)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
	}
	if creds.Password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(creds.Password),
		}
	}
	return settings
}

// frequencyToChannel maps a center frequency in MHz to its 802.11 channel.
func frequencyToChannel(mhz uint32) int {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz < 2484:
		return int(mhz-2407) / 5
	case mhz >= 5955 && mhz <= 7115:
		return int(mhz-5950) / 5
	case mhz >= 5000 && mhz < 5955:
		return int(mhz-5000) / 5
	}
	return 0
}

// strengthToRSSI converts NetworkManager's 0-100 quality to approximate dBm.
func strengthToRSSI(strength uint32) int {
	return int(min(strength, 100))/2 - 100
}

func toUint32(v any) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case uint8:
		return uint32(n)
	case int32:
		return uint32(n)
	}
	return 0
}
