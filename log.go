package tlsengine

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// logType is a bitmask selecting which categories of internal tracing are
// active. The engine never logs application plaintext; only protocol-level
// bookkeeping (message types, epochs, sequence numbers).
type logType int

const (
	logTypeHandshake logType = 1 << iota
	logTypeIO
	logTypeCrypto
	logTypeDtls
)

var (
	logMask   logType
	logOnce   sync.Once
	logger    = log.New(os.Stderr, "tlsengine: ", log.Lmicroseconds)
	logLookup = map[string]logType{
		"handshake": logTypeHandshake,
		"io":        logTypeIO,
		"crypto":    logTypeCrypto,
		"dtls":      logTypeDtls,
	}
)

// initLogging reads TLSENGINE_LOG (comma-separated category names, or "all")
// exactly once. Embedders that want structured logging should wrap the
// engine's callback surface themselves; this is a debugging aid only.
func initLogging() {
	logOnce.Do(func() {
		v := os.Getenv("TLSENGINE_LOG")
		if v == "" {
			return
		}
		if v == "all" {
			logMask = logTypeHandshake | logTypeIO | logTypeCrypto | logTypeDtls
			return
		}
		for _, name := range strings.Split(v, ",") {
			if t, ok := logLookup[strings.TrimSpace(name)]; ok {
				logMask |= t
			}
		}
	})
}

func logf(t logType, format string, args ...interface{}) {
	initLogging()
	if logMask&t == 0 {
		return
	}
	logger.Output(2, fmt.Sprintf(format, args...))
}

func assert(cond bool) {
	if !cond {
		panic("tlsengine: assertion failed")
	}
}
