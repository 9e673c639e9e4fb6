// Package codec implements the frame format used to talk to CryptoAuthentication
// devices.
//
// Commands are sent as [count][opcode][param1][param2][data][crc] and the
// device replies with [count][payload][crc]. The checksum is a CRC-16 using
// polynomial 0x8005 and is stored little endian.
package codec
