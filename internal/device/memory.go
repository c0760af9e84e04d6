package device

import (
	"fmt"

	"github.com/samcharles93/xload/pkg/axlf"
)

// BankMask selects the bank index from buffer object flags.
const BankMask = 0xFFFF

// BankType is how a bank's memory is provided.
type BankType uint8

const (
	BankPLDDR BankType = iota
	BankCMA
	BankStreaming
)

func (t BankType) String() string {
	switch t {
	case BankPLDDR:
		return "plddr"
	case BankCMA:
		return "cma"
	case BankStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

func (t BankType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *BankType) UnmarshalText(text []byte) error {
	for _, v := range []BankType{BankPLDDR, BankCMA, BankStreaming} {
		if v.String() == string(text) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("device: unknown bank type %q", text)
}

// Bank is the accounting view of one memory topology record.
type Bank struct {
	Index    int          `json:"index"`
	Tag      string       `json:"tag"`
	Type     BankType     `json:"type"`
	MemType  axlf.MemType `json:"-"`
	Base     uint64       `json:"base"`
	Size     uint64       `json:"size"`
	InUse    bool         `json:"in_use"`
	Reserved uint64       `json:"reserved"`
}

// Free returns the bytes still available in the bank.
func (b Bank) Free() uint64 {
	if b.Reserved >= b.Size {
		return 0
	}
	return b.Size - b.Reserved
}

// buildBanks keeps one bank per topology record so that bank indices match
// record indices, including unused records.
func buildBanks(topo *axlf.MemTopology, hostBase, hostSize uint64) []Bank {
	if topo.Len() == 0 {
		return nil
	}
	banks := make([]Bank, len(topo.Banks))
	for i, m := range topo.Banks {
		b := Bank{
			Index:   i,
			Tag:     m.Tag,
			MemType: m.Type,
			Base:    m.BaseAddress,
			Size:    m.Size(),
			InUse:   m.Used,
		}
		switch {
		case m.Type.Streaming():
			b.Type = BankStreaming
		case inWindow(b.Base, b.Size, hostBase, hostSize):
			b.Type = BankCMA
		default:
			b.Type = BankPLDDR
		}
		banks[i] = b
	}
	return banks
}

func inWindow(base, size, winBase, winSize uint64) bool {
	if winSize == 0 || base < winBase {
		return false
	}
	off := base - winBase
	return off <= winSize && size <= winSize-off
}

// Banks returns a copy of the memory banks of the committed container.
func (d *Device) Banks() []Bank {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.mmMu.Lock()
	defer d.mmMu.Unlock()
	return append([]Bank(nil), d.banks...)
}

// Reserve accounts size bytes against the bank named by the low 16 bits of
// flags and returns the bank index.
func (d *Device) Reserve(flags uint32, size uint64) (int, error) {
	idx := int(flags & BankMask)

	d.mu.RLock()
	defer d.mu.RUnlock()
	d.mmMu.Lock()
	defer d.mmMu.Unlock()

	b, err := d.bank(idx)
	if err != nil {
		return -1, err
	}
	if size > b.Free() {
		return -1, fmt.Errorf("%w: bank %d has %d bytes free, need %d", ErrBankFull, idx, b.Free(), size)
	}
	b.Reserved += size
	return idx, nil
}

// Release returns size bytes to a bank.
func (d *Device) Release(idx int, size uint64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.mmMu.Lock()
	defer d.mmMu.Unlock()

	b, err := d.bank(idx)
	if err != nil {
		return err
	}
	if size > b.Reserved {
		return fmt.Errorf("%w: bank %d releasing %d bytes, %d reserved", ErrInvalidBank, idx, size, b.Reserved)
	}
	b.Reserved -= size
	return nil
}

// bank returns an allocatable bank. Callers hold mmMu.
func (d *Device) bank(idx int) (*Bank, error) {
	if idx < 0 || idx >= len(d.banks) {
		return nil, fmt.Errorf("%w: bank %d of %d", ErrInvalidBank, idx, len(d.banks))
	}
	b := &d.banks[idx]
	if !b.InUse {
		return nil, fmt.Errorf("%w: bank %d (%s) is unused", ErrInvalidBank, idx, b.Tag)
	}
	if b.Type == BankStreaming {
		return nil, fmt.Errorf("%w: bank %d (%s) is a stream endpoint", ErrInvalidBank, idx, b.Tag)
	}
	return b, nil
}
