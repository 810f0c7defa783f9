package i2c

import (
	"context"
	"fmt"
	"sync"

	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	sensors "github.com/SinaHosseini7/ens160-aht21"
)

var _ sensors.RegisterBus = &GobotBus{}

// GobotBus adapts a gobot I2C connector (e.g. the NanoPi adaptor) to the
// sensors transport. Connections are opened lazily, one per device address.
type GobotBus struct {
	mx        sync.Mutex
	connector gobot.Connector
	busNum    int
	conns     map[byte]gobot.Connection
}

func NewGobotBus(connector gobot.Connector, busNum int) *GobotBus {
	if busNum < 0 {
		busNum = connector.DefaultI2cBus()
	}
	return &GobotBus{
		connector: connector,
		busNum:    busNum,
		conns:     make(map[byte]gobot.Connection),
	}
}

func (b *GobotBus) conn(address byte) (gobot.Connection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.busNum)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %x on bus %d: %w", address, b.busNum, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %x: %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	if err := c.WriteBytes(buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	if err := c.ReadBlockData(register, buffer); err != nil {
		return fmt.Errorf("could not read register %#x of %x: %w", register, address, err)
	}
	return nil
}

func (b *GobotBus) WriteRegister(ctx context.Context, address byte, register byte, data []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	if err := c.WriteBlockData(register, data); err != nil {
		return fmt.Errorf("could not write register %#x of %x: %w", register, address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes all opened device connections.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close connection to %x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return first
}
