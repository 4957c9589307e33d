package transport

import (
	"bytes"
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	nmSettingsPath           = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")
	nmSettingsIface          = "org.freedesktop.NetworkManager.Settings"
	nmSettingsConnIface      = "org.freedesktop.NetworkManager.Settings.Connection"
	nmActiveConnIface        = "org.freedesktop.NetworkManager.Connection.Active"
	dbusPropertiesGet        = "org.freedesktop.DBus.Properties.Get"
	nmActiveStateActivated   = 2
	nmActiveStateDeactivated = 4
)

// networkManager is the part of NetworkManager's D-Bus API the radio drives
// for one Wi-Fi device.
type networkManager interface {
	DeviceState(ctx context.Context) (uint32, error)
	ActiveAccessPoint(ctx context.Context) (dbus.ObjectPath, error)
	// FindProfile returns the saved profile for ssid, or "" when there is none.
	FindProfile(ctx context.Context, ssid string) (dbus.ObjectPath, error)
	Activate(ctx context.Context, profile dbus.ObjectPath) (dbus.ObjectPath, error)
	AddAndActivate(ctx context.Context, settings map[string]map[string]dbus.Variant, options map[string]dbus.Variant) (dbus.ObjectPath, error)
	// ActiveState reads NMActiveConnectionState of an active connection.
	ActiveState(ctx context.Context, active dbus.ObjectPath) (uint32, error)
}

type dbusNM struct {
	conn   *dbus.Conn
	device dbus.ObjectPath
}

func (n *dbusNM) prop(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := n.conn.Object(nmService, path).CallWithContext(ctx, dbusPropertiesGet, 0, iface, name).Store(&v)
	return v, err
}

func (n *dbusNM) DeviceState(ctx context.Context) (uint32, error) {
	v, err := n.prop(ctx, n.device, nmDeviceIface, "State")
	if err != nil {
		return 0, err
	}
	return toUint32(v.Value()), nil
}

func (n *dbusNM) ActiveAccessPoint(ctx context.Context) (dbus.ObjectPath, error) {
	v, err := n.prop(ctx, n.device, nmWirelessIface, "ActiveAccessPoint")
	if err != nil {
		return "", err
	}
	path, _ := v.Value().(dbus.ObjectPath)
	return path, nil
}

func (n *dbusNM) FindProfile(ctx context.Context, ssid string) (dbus.ObjectPath, error) {
	var profiles []dbus.ObjectPath
	if err := n.conn.Object(nmService, nmSettingsPath).CallWithContext(ctx, nmSettingsIface+".ListConnections", 0).Store(&profiles); err != nil {
		return "", fmt.Errorf("list connection profiles: %w", err)
	}
	for _, path := range profiles {
		var settings map[string]map[string]dbus.Variant
		if err := n.conn.Object(nmService, path).CallWithContext(ctx, nmSettingsConnIface+".GetSettings", 0).Store(&settings); err != nil {
			continue
		}
		if raw, ok := settings["802-11-wireless"]["ssid"].Value().([]byte); ok && bytes.Equal(raw, []byte(ssid)) {
			return path, nil
		}
	}
	return "", nil
}

func (n *dbusNM) Activate(ctx context.Context, profile dbus.ObjectPath) (dbus.ObjectPath, error) {
	var active dbus.ObjectPath
	err := n.conn.Object(nmService, nmPath).CallWithContext(ctx,
		nmIface+".ActivateConnection", 0, profile, n.device, dbus.ObjectPath("/"),
	).Store(&active)
	return active, err
}

func (n *dbusNM) AddAndActivate(ctx context.Context, settings map[string]map[string]dbus.Variant, options map[string]dbus.Variant) (dbus.ObjectPath, error) {
	var profile, active dbus.ObjectPath
	var result map[string]dbus.Variant
	err := n.conn.Object(nmService, nmPath).CallWithContext(ctx,
		nmIface+".AddAndActivateConnection2", 0, settings, n.device, dbus.ObjectPath("/"), options,
	).Store(&profile, &active, &result)
	return active, err
}

func (n *dbusNM) ActiveState(ctx context.Context, active dbus.ObjectPath) (uint32, error) {
	v, err := n.prop(ctx, active, nmActiveConnIface, "State")
	if err != nil {
		return 0, err
	}
	return toUint32(v.Value()), nil
}
