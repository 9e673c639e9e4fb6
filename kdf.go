package atca

// KDFAlgorithm selects the key derivation algorithm.
type KDFAlgorithm uint8

const (
	KDFAlgPRF  KDFAlgorithm = 0x00 // TLS 1.2 PRF
	KDFAlgAES  KDFAlgorithm = 0x20 // AES-ECB of the message
	KDFAlgHKDF KDFAlgorithm = 0x40 // HKDF extract (HMAC-SHA256)
)

// KDFSource selects where the input key is read from.
type KDFSource uint8

const (
	KDFSourceTempKey   KDFSource = 0x00
	KDFSourceTempKeyUp KDFSource = 0x01
	KDFSourceSlot      KDFSource = 0x02
	KDFSourceAltKeyBuf KDFSource = 0x03
)

// KDFTarget selects where the derived key is written.
type KDFTarget uint8

const (
	KDFTargetTempKey   KDFTarget = 0x00
	KDFTargetTempKeyUp KDFTarget = 0x04
	KDFTargetSlot      KDFTarget = 0x08
	KDFTargetAltKeyBuf KDFTarget = 0x0c
	KDFTargetOutput    KDFTarget = 0x10
	KDFTargetOutputEnc KDFTarget = 0x14
)

// HKDF details.
const (
	KDFHKDFMsgLocSlot    uint32 = 0x00 // message in the slot given by the target key id
	KDFHKDFMsgLocTempKey uint32 = 0x01
	KDFHKDFMsgLocInput   uint32 = 0x02
	KDFHKDFMsgLocIV      uint32 = 0x03
	KDFHKDFZeroKey       uint32 = 0x04 // use a zero key instead of the source key
)

const kdfMessageMax = 128

// KDFParams describes a single KDF command.
type KDFParams struct {
	Algorithm KDFAlgorithm
	Source    KDFSource
	Target    KDFTarget

	// SourceKeyID and TargetKeyID are used when the source or target is a
	// slot.
	SourceKeyID uint16
	TargetKeyID uint16

	// Details holds algorithm specific options. For PRF and HKDF the message
	// size is added to the most significant byte unless already set.
	Details uint32
	Message []byte
}
