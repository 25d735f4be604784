package domain

// Block represents a blockchain block as returned by a provider.
// A Block is immutable once fetched; partially decoded data is never
// surfaced here, it is reported as a fetch error by the transport.
type Block struct {
	Number       uint64
	Hash         string
	ParentHash   string
	Timestamp    uint64
	Transactions []string
}

// TxCount returns the number of transactions in the block.
func (b *Block) TxCount() int {
	return len(b.Transactions)
}
