package atca

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/northvolt/go-atca/codec"
)

// halKit speaks the ASCII kit protocol of Microchip development boards.
//
// Every request is a line such as "s:t(0730...)\n" and every reply a line of
// the form "SS(HEX...)" where SS is the status of the kit.
type halKit struct {
	phy io.ReadWriter
	buf []byte
	cfg Config
}

var errNoDevice = errors.New("atca: no device found")

func newHALKit(ctx context.Context, phy io.ReadWriter, cfg Config) (*halKit, error) {
	kit := &halKit{
		phy: &kitDebug{"kit", getLogger(cfg), phy},
		buf: make([]byte, getPacketSize(cfg)),
		cfg: cfg,
	}
	return kit, kit.init(ctx)
}

func kitIDFromDeviceType(deviceType DeviceType) string {
	switch deviceType {
	case DeviceATECC608:
		return "ECC608"
	default:
		return "unknown"
	}
}

func deviceTypeFromKitID(id string) (DeviceType, error) {
	if strings.HasPrefix(id, "ECC6") {
		return DeviceATECC608, nil
	}
	return DeviceType(0), errors.New("atca: unknown device type")
}

func kitTypeFromKitIface(iface string) (KitType, error) {
	switch iface {
	case "TWI":
		return KitTypeI2C, nil
	case "SWI":
		return KitTypeSWI, nil
	case "SPI":
		return KitTypeSPI, nil
	default:
		return KitType(0), errors.New("atca: unknown kit type")
	}
}

func kitIface(kitType KitType) string {
	switch kitType {
	case KitTypeI2C:
		return "i2c"
	case KitTypeSWI:
		return "swi"
	case KitTypeSPI:
		return "spi"
	default:
		return "unknown"
	}
}

const (
	kitMaxScanCount = 8

	kitMsgSize    = 32
	kitRxWrapSize = kitMsgSize + 6
)

func (h *halKit) init(ctx context.Context) error {
	devIndex := h.cfg.HID.DevIndex
	kitType := h.cfg.HID.KitType
	devIdentity := h.cfg.HID.DevIdentity

	// Iterate to find the target device
	for i := 0; i < kitMaxScanCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		dev, err := h.getKitDeviceByIndex(i)
		if errors.Is(err, errNoDevice) {
			continue
		} else if err != nil {
			return err
		}

		// Check if the returned device is a device we want to pick
		if devIndex != 0 && devIndex != i {
			continue
		}
		if devIdentity != 0 && devIdentity != dev.Address {
			continue
		}
		if h.cfg.DeviceType != dev.DeviceType {
			continue
		}
		if kitType != KitTypeAuto && kitType != dev.KitType {
			continue
		}

		if kitType != KitTypeAuto {
			if err := h.selectInterface(kitType); err != nil {
				return err
			}
		}

		return h.selectDevice(dev.Address)
	}

	return errors.New("atca: failed to discover device")
}

func (h *halKit) prefix() byte {
	return kitIDFromDeviceType(h.cfg.DeviceType)[0]
}

func (h *halKit) Wake() error {
	var data [10]byte
	n, err := h.executeResponse(fmt.Sprintf("%c:w()\n", h.prefix()), data[:])
	if err != nil {
		return err
	}
	return checkWakeUp(data[:n])
}

func (h *halKit) Idle() error {
	return h.execute(fmt.Sprintf("%c:i()\n", h.prefix()))
}

func (h *halKit) Sleep() error {
	return h.execute(fmt.Sprintf("%c:s()\n", h.prefix()))
}

func (h *halKit) Write(data []byte) (int, error) {
	payload := strings.ToUpper(hex.EncodeToString(data))
	if _, err := h.phySend([]byte(fmt.Sprintf("%c:t(%s)\n", h.prefix(), payload))); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (h *halKit) Read(dst []byte) (int, error) {
	msg := hex.EncodedLen(len(dst)) + kitRxWrapSize
	pkt := len(h.buf)
	buf := make([]byte, (msg/pkt+1)*pkt)

	n, err := h.phyRecv(buf)
	if err != nil {
		return 0, err
	}

	return kitParseRsp(buf[:n], dst)
}

func (h *halKit) execute(command string) error {
	var data [10]byte
	_, err := h.executeResponse(command, data[:])
	return err
}

func (h *halKit) executeResponse(command string, data []byte) (int, error) {
	if _, err := h.phySend([]byte(command)); err != nil {
		return 0, err
	}

	buf := make([]byte, len(h.buf))
	n, err := h.phyRecv(buf)
	if err != nil {
		return 0, err
	}
	return kitParseRsp(buf[:n], data)
}

func (h *halKit) getKitDeviceByIndex(index int) (kitDevice, error) {
	command := fmt.Sprintf("board:device(%02X)\n", index)
	if _, err := h.phySend([]byte(command)); err != nil {
		return kitDevice{}, err
	}

	buf := make([]byte, len(h.buf))
	n, err := h.phyRecv(buf)
	if err != nil {
		return kitDevice{}, err
	}
	return parseKitDevice(buf[:n])
}

func (h *halKit) selectInterface(kitType KitType) error {
	return h.execute(fmt.Sprintf("%c:physical:interface(%s)\n", h.prefix(), kitIface(kitType)))
}

func (h *halKit) selectDevice(address uint8) error {
	return h.execute(fmt.Sprintf("%c:physical:select(%02X)\n", h.prefix(), address))
}

type kitDevice struct {
	DeviceType DeviceType
	KitType    KitType
	Address    uint8
}

func parseKitDevice(buf []byte) (kitDevice, error) {
	var (
		kitID    string
		kitIface string
		index    uint8
		address  uint8
	)
	if bytes.HasPrefix(buf, []byte("no_device")) {
		return kitDevice{}, errNoDevice
	}
	_, err := fmt.Sscanf(
		string(buf), "%s %s %02X(%02X)", &kitID, &kitIface, &index, &address,
	)
	if err != nil {
		return kitDevice{}, fmt.Errorf("atca: invalid kit device: %w", err)
	}

	dt, err := deviceTypeFromKitID(kitID)
	if err != nil {
		return kitDevice{}, err
	}
	kt, err := kitTypeFromKitIface(kitIface)
	if err != nil {
		return kitDevice{}, err
	}
	return kitDevice{dt, kt, address}, nil
}

// phySend writes txData in zero padded packets.
func (h *halKit) phySend(txData []byte) (int, error) {
	sent := 0
	for sent < len(txData) {
		n := copy(h.buf, txData[sent:])
		for i := n; i < len(h.buf); i++ {
			h.buf[i] = 0
		}

		if _, err := h.phy.Write(h.buf); err != nil {
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

// phyRecv reads packets into data until a line ends.
func (h *halKit) phyRecv(data []byte) (int, error) {
	read := 0
	for {
		n, err := h.phy.Read(h.buf)
		if err != nil {
			return read, err
		}

		end := bytes.IndexByte(h.buf[:n], '\n')
		if end != -1 {
			n = end
		}
		// error out to make sure we never loose any data
		if read+n > len(data) {
			return read, errors.New("atca: kit receive buffer overflow")
		}
		read += copy(data[read:], h.buf[:n])
		if end != -1 || n == 0 {
			return read, nil
		}
	}
}

// kitParseRsp decodes a "SS(HEX...)" reply into dst.
func kitParseRsp(reply []byte, dst []byte) (int, error) {
	if len(reply) < 3 {
		return 0, fmt.Errorf("atca: short kit reply %q", reply)
	}
	var status [1]byte
	if _, err := hex.Decode(status[:], reply[0:2]); err != nil {
		return 0, err
	} else if status[0] != 0 {
		return 0, fmt.Errorf("atca: kit status %#02x", status[0])
	}

	index := bytes.IndexByte(reply[3:], ')')
	if index == -1 {
		return 0, errors.New("atca: failed to find end of frame")
	}
	if hex.DecodedLen(index) > len(dst) {
		return 0, errors.New("atca: kit reply exceeds buffer")
	}
	return hex.Decode(dst, reply[3:3+index])
}

// checkWakeUp checks that b is the response sent by a device after waking up.
func checkWakeUp(b []byte) error {
	resp, err := codec.Decode(b)
	if err != nil {
		return err
	}
	if resp.Status() != StatusWake {
		return fmt.Errorf("atca: unexpected wake status %#02x", resp.Status())
	}
	return nil
}

func getPacketSize(cfg Config) int {
	if cfg.HID.PacketSize > 0 {
		return cfg.HID.PacketSize
	}
	return 64
}

// kitDebug logs the raw packets exchanged with the kit.
type kitDebug struct {
	id   string
	l    Logger
	next io.ReadWriter
}

func (k *kitDebug) Read(p []byte) (int, error) {
	n, err := k.next.Read(p)
	k.l.Printf("%5s <<  %q %v", k.id, bytes.TrimRight(p[:n], "\x00"), err)
	return n, err
}

func (k *kitDebug) Write(p []byte) (int, error) {
	k.l.Printf("%5s >>  %q", k.id, bytes.TrimRight(p, "\x00"))
	return k.next.Write(p)
}
