package codec

import (
	"encoding/binary"
)

// Command sizes.
const (
	// CommandSizeMin is the size of a command without data.
	//
	// It includes count, opcode, param1, param2 and crc.
	CommandSizeMin = 7
	// CommandSizeMax is the largest command frame the device accepts.
	CommandSizeMax = 4*36 + 7
	// DataSizeMax is the maximum number of data bytes in a command.
	DataSizeMax = CommandSizeMax - CommandSizeMin
)

// Command is a single request to the device.
//
// Param1 is usually called mode in the datasheet and Param2 is the key id or
// address. A Command is never modified once it is built.
type Command struct {
	Opcode uint8
	Param1 uint8
	Param2 uint16
	Data   []byte
}

// NewCommand returns a command after checking that data fits in a frame.
func NewCommand(opcode uint8, param1 uint8, param2 uint16, data []byte) (Command, error) {
	if len(data) > DataSizeMax {
		return Command{}, newError(ErrMalformed, "command data of %d bytes exceeds %d", len(data), DataSizeMax)
	}
	return Command{
		Opcode: opcode,
		Param1: param1,
		Param2: param2,
		Data:   data,
	}, nil
}

// Size returns the size of the encoded frame.
func (c Command) Size() int {
	return CommandSizeMin + len(c.Data)
}

// Encode serializes the command into the frame sent to the device:
//
//	[count][opcode][param1][param2 lo][param2 hi][data...][crc lo][crc hi]
func Encode(c Command) ([]byte, error) {
	if len(c.Data) > DataSizeMax {
		return nil, newError(ErrMalformed, "command data of %d bytes exceeds %d", len(c.Data), DataSizeMax)
	}
	size := c.Size()
	b := make([]byte, 0, size)
	b = append(b, uint8(size))
	b = append(b, c.Opcode)
	b = append(b, c.Param1)
	b = binary.LittleEndian.AppendUint16(b, c.Param2)
	b = append(b, c.Data...)
	return binary.LittleEndian.AppendUint16(b, CRC16(b)), nil
}

// DecodeCommand parses a command frame.
//
// It is the inverse of Encode and is used by device simulators.
func DecodeCommand(b []byte) (Command, error) {
	body, err := checkFrame(b, CommandSizeMin, CommandSizeMax)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Opcode: body[0],
		Param1: body[1],
		Param2: binary.LittleEndian.Uint16(body[2:4]),
		Data:   body[4:],
	}, nil
}

// checkFrame validates count and crc of a frame and returns the bytes between
// the count and the crc.
func checkFrame(b []byte, minSize, maxSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, newError(ErrTruncated, "empty frame")
	}
	count := int(b[0])
	if count < minSize {
		return nil, newError(ErrMalformed, "count %d below minimum %d", count, minSize)
	}
	if count > maxSize {
		return nil, newError(ErrMalformed, "count %d above maximum %d", count, maxSize)
	}
	if len(b) < count {
		return nil, newError(ErrTruncated, "got %d of %d bytes", len(b), count)
	}

	frame := b[:count]
	sized, crc := frame[:count-2], frame[count-2:]
	if want, got := CRC16(sized), binary.LittleEndian.Uint16(crc); want != got {
		return nil, newError(ErrChecksumMismatch, "got %#04x want %#04x", got, want)
	}
	return sized[1:], nil
}
