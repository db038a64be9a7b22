package stake_test

import (
	"errors"
	"testing"

	"CurveLedger/internal/event"
	"CurveLedger/internal/stake"
)

func spin(pool, user string, delta, version int64) *event.StakeSpin {
	return &event.StakeSpin{
		StakeAddr:   pool,
		User:        user,
		AmountDelta: delta,
		TxnVersion:  version,
		Timestamp:   1_700_000_000 + version,
	}
}

func TestApplySpin_OpensAndMovesPosition(t *testing.T) {
	b := stake.NewBook()

	pos := b.ApplySpin(spin("0xpool", "0xalice", 1_000, 1))
	if pos.Amount != 1_000 || pos.LastVersion != 1 {
		t.Fatalf("position = %+v", pos)
	}

	pos = b.ApplySpin(spin("0xpool", "0xalice", -400, 2))
	if pos.Amount != 600 {
		t.Fatalf("amount = %d, want 600", pos.Amount)
	}

	got, err := b.Position("0xpool", "0xalice")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if got.Amount != 600 || got.LastVersion != 2 {
		t.Fatalf("position = %+v", got)
	}
}

func TestPosition_UnknownPool(t *testing.T) {
	b := stake.NewBook()
	_, err := b.Position("0xpool", "0xalice")
	if !errors.Is(err, event.ErrUnknownStake) {
		t.Fatalf("got %v, want ErrUnknownStake", err)
	}
}

func TestPosition_KnownPoolUnknownUser(t *testing.T) {
	b := stake.NewBook()
	b.ApplySpin(spin("0xpool", "0xalice", 500, 1))

	got, err := b.Position("0xpool", "0xbob")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if got.Amount != 0 {
		t.Fatalf("amount = %d, want 0", got.Amount)
	}
}

func TestStats_CountsActiveStakers(t *testing.T) {
	b := stake.NewBook()
	b.ApplySpin(spin("0xpool", "0xalice", 1_000, 1))
	b.ApplySpin(spin("0xpool", "0xbob", 250, 2))
	b.ApplySpin(spin("0xpool", "0xcarol", 300, 3))
	b.ApplySpin(spin("0xpool", "0xcarol", -300, 4))

	st, err := b.Stats("0xpool")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.ActiveStakers != 2 {
		t.Fatalf("active = %d, want 2", st.ActiveStakers)
	}
	if st.TotalStaked != 1_250 {
		t.Fatalf("total = %d, want 1250", st.TotalStaked)
	}
	if st.AppliedVersion != 4 {
		t.Fatalf("version = %d, want 4", st.AppliedVersion)
	}
}

func TestStats_UnknownPool(t *testing.T) {
	b := stake.NewBook()
	if _, err := b.Stats("0xpool"); !errors.Is(err, event.ErrUnknownStake) {
		t.Fatalf("got %v, want ErrUnknownStake", err)
	}
}

func TestRestore_SeedsPositions(t *testing.T) {
	b := stake.NewBook()
	b.Restore(stake.Position{StakeAddr: "0xpool", User: "0xalice", Amount: 900, LastVersion: 7})

	got, err := b.Position("0xpool", "0xalice")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if got.Amount != 900 || got.LastVersion != 7 {
		t.Fatalf("position = %+v", got)
	}

	st, _ := b.Stats("0xpool")
	if st.AppliedVersion != 7 {
		t.Fatalf("pool version = %d, want 7", st.AppliedVersion)
	}
}
