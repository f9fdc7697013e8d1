// Package ledger defines the transfer transaction batched by txbatch and the
// acceptance rules that apply to a batch of transfers.
package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gabapcia/txbatch/internal/digest"
	"github.com/gabapcia/txbatch/internal/pkg/validator"

	"github.com/google/uuid"
)

// canonicalVersion prefixes every canonical encoding so the layout can change
// without old and new encodings colliding.
const canonicalVersion byte = 1

// Transfer moves Amount units from one account to another. Nonce orders the
// transfers sent by the same account.
type Transfer struct {
	ID     string `json:"id" validate:"required,uuid"`
	From   string `json:"from" validate:"required,max=256"`
	To     string `json:"to" validate:"required,max=256,nefield=From"`
	Amount uint64 `json:"amount" validate:"gt=0"`
	Nonce  uint64 `json:"nonce"`
	Memo   string `json:"memo,omitempty" validate:"max=512"`
}

var _ digest.Transaction = Transfer{}

// NewTransfer builds a Transfer with a fresh time-ordered ID and validates it.
func NewTransfer(from, to string, amount, nonce uint64) (Transfer, error) {
	t := Transfer{
		ID:     uuid.Must(uuid.NewV7()).String(),
		From:   from,
		To:     to,
		Amount: amount,
		Nonce:  nonce,
	}

	if err := validator.Validate(t); err != nil {
		return Transfer{}, fmt.Errorf("invalid transfer: %w", err)
	}
	return t, nil
}

// CanonicalBytes encodes the transfer as a version byte followed by each
// field in declaration order. Strings carry a 4-byte big-endian length and
// integers are 8-byte big-endian.
func (t Transfer) CanonicalBytes() []byte {
	size := 1 + 4*4 + 8*2 + len(t.ID) + len(t.From) + len(t.To) + len(t.Memo)
	buf := make([]byte, 0, size)

	buf = append(buf, canonicalVersion)
	buf = appendString(buf, t.ID)
	buf = appendString(buf, t.From)
	buf = appendString(buf, t.To)
	buf = binary.BigEndian.AppendUint64(buf, t.Amount)
	buf = binary.BigEndian.AppendUint64(buf, t.Nonce)
	buf = appendString(buf, t.Memo)
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
