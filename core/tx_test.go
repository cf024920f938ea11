package core

import (
	"encoding/json"
	"testing"
)

func TestTransactionCreation(t *testing.T) {
	tx := NewTx("A", "B", "10")
	if err := tx.Check(); err != nil {
		t.Fatalf("Transaction check failed: %v", err)
	}

	want := "200eccc390166e935d3029e83b6490cce424c96767508bbcb0d61d9520c78934"
	if got := tx.ID(); got != want {
		t.Fatalf("ID = %s, want %s", got, want)
	}
	t.Logf("Transaction created successfully: %s", tx.String())
}

func TestTransactionCheckRejectsMissingFields(t *testing.T) {
	for _, tx := range []Transaction{
		NewTx("", "B", "10"),
		NewTx("A", "", "10"),
		NewTx("A", "B", ""),
	} {
		if err := tx.Check(); err == nil {
			t.Errorf("Check(%s) accepted an incomplete transaction", tx)
		}
	}
}

func TestAmountAcceptsNumberOrString(t *testing.T) {
	var fromNumber, fromString Transaction
	if err := json.Unmarshal([]byte(`{"sender":"A","receiver":"B","value":10}`), &fromNumber); err != nil {
		t.Fatalf("Failed to decode numeric value: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"sender":"A","receiver":"B","value":"10"}`), &fromString); err != nil {
		t.Fatalf("Failed to decode string value: %v", err)
	}
	if fromNumber != fromString {
		t.Fatalf("number and string amounts differ: %+v vs %+v", fromNumber, fromString)
	}
	if fromNumber.ID() != fromString.ID() {
		t.Fatal("number and string amounts hash differently")
	}

	var bad Transaction
	if err := json.Unmarshal([]byte(`{"sender":"A","receiver":"B","value":true}`), &bad); err == nil {
		t.Fatal("boolean amount should be rejected")
	}
}

func TestTransactionEncoding(t *testing.T) {
	tx := NewTx("alice", "bob", "12.5")
	data, err := tx.Encode()
	if err != nil {
		t.Fatalf("Failed to encode transaction: %v", err)
	}
	if string(data) != `{"sender":"alice","receiver":"bob","value":"12.5"}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	decoded, err := DecodeTransaction(data)
	if err != nil {
		t.Fatalf("Failed to decode transaction: %v", err)
	}
	if decoded != tx {
		t.Fatalf("decoded %+v, want %+v", decoded, tx)
	}
}
