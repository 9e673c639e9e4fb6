package atca

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/karalabe/usb"
)

// ErrUSBNotSupported is returned when the USB support is missing.
//
// When building, CGO is required for USB support. If CGO is not enabled, the
// HID interface will not be available.
var ErrUSBNotSupported = errors.New("atca: usb support is missing")

// NewHIDDev returns a device handle that communicates with a kit over HID.
//
// The returned closer releases the USB device and must be called after the
// handle is closed.
func NewHIDDev(ctx context.Context, cfg Config) (*Dev, io.Closer, error) {
	hal, closer, err := NewHIDHAL(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	d, err := Open(ctx, hal, cfg)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return d, closer, nil
}

// NewHIDHAL returns the HAL of the first kit matching cfg.HID, for use with
// Open. The closer releases the USB device.
func NewHIDHAL(ctx context.Context, cfg Config) (HAL, io.Closer, error) {
	if !usb.Supported() {
		return nil, nil, ErrUSBNotSupported
	}

	deviceInfos, err := usb.EnumerateHid(cfg.HID.VendorID, cfg.HID.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("atca: failed to get hid devices: %w", err)
	}
	for _, di := range deviceInfos {
		hid, e := di.Open()
		if e != nil {
			err = e
			continue
		}

		hal, err := newHALKit(ctx, hid, cfg)
		if err != nil {
			_ = hid.Close()
			return nil, nil, err
		}
		return hal, hid, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("atca: %w", err)
	}
	return nil, nil, errors.New("atca: no hid devices found")
}
