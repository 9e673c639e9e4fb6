package atca

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/northvolt/go-atca/codec"
)

// Logger is the interface used for debug messages.
//
// Some messages will be multiple lines. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nullLoggerImpl struct{}

func (nullLoggerImpl) Printf(format string, args ...interface{}) {}

var nullLogger = nullLoggerImpl{}

func getLogger(cfg Config) Logger {
	if cfg.Debug == nil {
		return nullLogger
	}
	return cfg.Debug
}

var opcodeNames = map[uint8]string{
	opCheckMac:    "checkmac",
	opDeriveKey:   "derivekey",
	opInfo:        "info",
	opGenDig:      "gendig",
	opGenKey:      "genkey",
	opHMAC:        "hmac",
	opLock:        "lock",
	opMAC:         "mac",
	opNonce:       "nonce",
	opPause:       "pause",
	opPrivWrite:   "privwrite",
	opRandom:      "random",
	opRead:        "read",
	opSign:        "sign",
	opUpdateExtra: "updateextra",
	opVerify:      "verify",
	opWrite:       "write",
	opECDH:        "ecdh",
	opCounter:     "counter",
	opDelete:      "delete",
	opSHA:         "sha",
	opAES:         "aes",
	opKDF:         "kdf",
	opSecureBoot:  "secureboot",
	opSelfTest:    "selftest",
}

func opcodeName(op uint8) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%#02x)", op)
}

// commandSummary is a one line description of a command frame.
type commandSummary []byte

func (c commandSummary) String() string {
	cmd, err := codec.DecodeCommand(c)
	if err != nil {
		return fmt.Sprintf("invalid command: %v", err)
	}
	return fmt.Sprintf("%s mode=%#02x param2=%#04x data=%d",
		opcodeName(cmd.Opcode), cmd.Param1, cmd.Param2, len(cmd.Data))
}

// responseSummary is a one line description of a response frame.
type responseSummary []byte

func (r responseSummary) String() string {
	rsp, err := codec.Decode(r)
	switch {
	case err != nil:
		return fmt.Sprintf("invalid response: %v", err)
	case !rsp.IsStatus():
		return fmt.Sprintf("output %d bytes", len(rsp.Payload))
	case rsp.Status() == StatusSuccess:
		return "status ok"
	default:
		return fmt.Sprintf("status %#02x: %v", rsp.Status(), statusError(rsp.Status()))
	}
}

// hexDump lazily formats binary data, matching `hexdump -C`.
type hexDump []byte

func (h hexDump) String() string {
	var buf strings.Builder
	buf.WriteByte('\n')
	d := hex.Dumper(&buf)
	_, _ = d.Write([]byte(h))
	_ = d.Close()
	buf.WriteByte('\n')
	return buf.String()
}
