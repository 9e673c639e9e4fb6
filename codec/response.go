package codec

import "encoding/binary"

// Response sizes.
const (
	// ResponseSizeMin is the size of a status response.
	//
	// It includes count, status and crc.
	ResponseSizeMin = 4
	// ResponseSizeMax is the largest response frame the device produces.
	ResponseSizeMax = 75
)

// Response is a validated response frame.
//
// A response of ResponseSizeMin bytes carries a single status byte; longer
// responses carry the command output in Payload.
type Response struct {
	Payload []byte
}

// IsStatus reports if the response only carries a status byte.
func (r Response) IsStatus() bool {
	return len(r.Payload) == ResponseSizeMin-3
}

// Status returns the status byte of a status response.
//
// Responses carrying output always indicate success and return 0x00.
func (r Response) Status() uint8 {
	if r.IsStatus() {
		return r.Payload[0]
	}
	return 0x00
}

// Decode validates a response frame received from the device.
//
// The frame is [count][payload...][crc lo][crc hi]. Bytes following count are
// ignored, allowing callers to read into a buffer larger than the response.
func Decode(b []byte) (Response, error) {
	payload, err := checkFrame(b, ResponseSizeMin, ResponseSizeMax)
	if err != nil {
		return Response{}, err
	}
	return Response{Payload: payload}, nil
}

// EncodeResponse frames payload the way the device does.
func EncodeResponse(payload []byte) []byte {
	size := len(payload) + 3
	b := make([]byte, 0, size)
	b = append(b, uint8(size))
	b = append(b, payload...)
	return binary.LittleEndian.AppendUint16(b, CRC16(b))
}

// EncodeStatus frames a status response.
func EncodeStatus(status uint8) []byte {
	return EncodeResponse([]byte{status})
}
