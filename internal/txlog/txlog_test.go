package txlog

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRecordAndReadBack(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	acct := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	hash := common.HexToHash("0x11")

	s.RecordSend(acct, 7, "place", hash, 1, nil)
	s.RecordSend(acct, 8, "cancel", common.Hash{}, 5, fmt.Errorf("nonce too low"))

	got, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}

	// Newest first.
	if got[0].Kind != "cancel" || got[0].Nonce != 8 || got[0].Attempts != 5 {
		t.Fatalf("newest entry = %+v", got[0])
	}
	if got[0].Err != "nonce too low" || got[0].TxHash != "" {
		t.Fatalf("failed send recorded wrong: %+v", got[0])
	}
	if got[1].Kind != "place" || got[1].TxHash != hash.Hex() || got[1].Err != "" {
		t.Fatalf("successful send recorded wrong: %+v", got[1])
	}
	if got[1].Account != acct.Hex() {
		t.Fatalf("account=%s want %s", got[1].Account, acct.Hex())
	}
}

func TestRecentLimit(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	acct := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	for i := 0; i < 5; i++ {
		s.RecordSend(acct, uint64(i), "place", common.Hash{}, 1, nil)
	}
	got, err := s.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Nonce != 4 || got[2].Nonce != 2 {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	s.RecordSend(common.Address{}, 0, "place", common.Hash{}, 1, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}
