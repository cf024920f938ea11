package core

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Amount is a transferred value. It is kept in its textual form so that
// clients may send either a JSON number or a JSON string; both hash the same.
type Amount string

// MarshalJSON always encodes the amount as a string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON accepts "10", 10 and 10.5 alike.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or a string: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Transaction is a value transfer between two identifiers. It is never
// mutated after creation; blocks hold their own copies.
type Transaction struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Value    Amount `json:"value"`
}

// NewTx creates a transaction.
func NewTx(sender, receiver string, value Amount) Transaction {
	return Transaction{Sender: sender, Receiver: receiver, Value: value}
}

// Check reports a structurally incomplete transaction.
func (tx Transaction) Check() error {
	switch {
	case tx.Sender == "":
		return errors.New("transaction is missing sender")
	case tx.Receiver == "":
		return errors.New("transaction is missing receiver")
	case tx.Value == "":
		return errors.New("transaction is missing value")
	}
	return nil
}

// ID returns the SHA3-256 of the transaction's canonical encoding as hex.
// Identical transactions share an ID.
func (tx Transaction) ID() string {
	data, err := tx.Encode()
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal transaction: %v", err))
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// String returns a short representation for logs.
func (tx Transaction) String() string {
	return fmt.Sprintf("Tx{From: %s, To: %s, Value: %s}", tx.Sender, tx.Receiver, tx.Value)
}

// Encode serializes the transaction to JSON
func (tx Transaction) Encode() ([]byte, error) {
	return json.Marshal(tx)
}

// DecodeTransaction deserializes the transaction from JSON
func DecodeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return Transaction{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}
