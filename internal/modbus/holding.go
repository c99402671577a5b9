package modbus

import (
	"fmt"
	"time"
)

// ReadHoldings reads count holding registers starting at from (Modbus
// function 0x03). Adapted from the teacher's clientHolding.go.
func (c *Client) ReadHoldings(from, count int, tout time.Duration) ([]int, error) {
	b := requestBuilder{}
	b.word(from)
	b.word(count)
	tx := pdu{function: 0x03, data: b.data}

	var values []int
	decode := func(r *responseReader) error {
		length, err := r.byte()
		if err != nil {
			return err
		}
		if length != count*2 {
			return fmt.Errorf("modbus: expected %d bytes of holding registers, got %d", count*2, length)
		}
		values, err = r.words(count)
		return err
	}
	if err := c.query(tout, tx, decode); err != nil {
		return nil, err
	}
	return values, nil
}

// WriteSingleHolding writes one holding register (Modbus function 0x06).
func (c *Client) WriteSingleHolding(address, value int, tout time.Duration) error {
	b := requestBuilder{}
	b.word(address)
	b.word(value)
	tx := pdu{function: 0x06, data: b.data}

	decode := func(r *responseReader) error {
		gotAddr, err := r.word()
		if err != nil {
			return err
		}
		if gotAddr != address {
			return fmt.Errorf("modbus: write single holding echoed address %d, expected %d", gotAddr, address)
		}
		gotVal, err := r.word()
		if err != nil {
			return err
		}
		if gotVal != value {
			return fmt.Errorf("modbus: write single holding echoed value %d, expected %d", gotVal, value)
		}
		return nil
	}
	return c.query(tout, tx, decode)
}

// WriteMultipleHoldings writes consecutive holding registers starting at
// address (Modbus function 0x10) — this is how the box worker writes a
// valve/device's 2-register float value in one round trip.
func (c *Client) WriteMultipleHoldings(address int, values []int, tout time.Duration) error {
	b := requestBuilder{}
	b.word(address)
	b.word(len(values))
	b.byte(len(values) * 2)
	b.words(values...)
	tx := pdu{function: 0x10, data: b.data}

	decode := func(r *responseReader) error {
		gotAddr, err := r.word()
		if err != nil {
			return err
		}
		if gotAddr != address {
			return fmt.Errorf("modbus: write multiple holdings echoed address %d, expected %d", gotAddr, address)
		}
		gotCount, err := r.word()
		if err != nil {
			return err
		}
		if gotCount != len(values) {
			return fmt.Errorf("modbus: write multiple holdings echoed count %d, expected %d", gotCount, len(values))
		}
		return nil
	}
	return c.query(tout, tx, decode)
}
