package sensors

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// RegisterReader reads len(buffer) bytes starting at register. The register
// pointer write and the read happen in a single bus transaction (repeated start),
// so contiguous registers are observed as one snapshot.
type RegisterReader interface {
	ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error
}

// RegisterWriter writes data starting at register in a single bus transaction.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, address byte, register byte, data []byte) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// RegisterBus is the transport shared by the sensor drivers. Implementations are
// not required to serialize multi-call sequences: callers that drive more than
// one device (or run on more than one goroutine) must hold a lock for the whole
// read-modify sequence.
type RegisterBus interface {
	I2CBus
	RegisterReader
	RegisterWriter
}
