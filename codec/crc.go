package codec

// CRC16 calculates the checksum used on every frame exchanged with the device.
//
// Refer to the Atmel CryptoAuthentication Data Zone CRC Calculation document
// for details about how CRC is used in this device.
// https://ww1.microchip.com/downloads/en/Appnotes/Atmel-8936-CryptoAuth-Data-Zone-CRC-Calculation-ApplicationNote.pdf
func CRC16(data []byte) uint16 {
	const polynom uint16 = 0x8005
	var crc uint16

	for _, b := range data {
		for j := 0; j < 8; j++ {
			dataBit := (b >> j) & 0x01
			crcBit := byte(crc >> 15)
			crc <<= 1
			if dataBit != crcBit {
				crc ^= polynom
			}
		}
	}

	return crc
}
