package mtproto

import "testing"

func TestCheckPtsDiff(t *testing.T) {
	cases := []struct {
		name        string
		startPts    int32
		localPts    int32
		count       int32
		wantApplies bool
		wantGap     bool
	}{
		{"applies cleanly", 100, 105, 5, true, false},
		{"idempotent replay, count 0", 100, 100, 0, true, false},
		{"already applied, drop silently", 100, 98, 5, false, false},
		{"gap, forces getDifference", 100, 110, 5, false, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			u := newUpdateEngine(nil)
			u.SeedCursor(Cursor{Pts: c.startPts})

			applies, gap := u.CheckPtsDiff(c.localPts, c.count)
			if applies != c.wantApplies || gap != c.wantGap {
				t.Fatalf("CheckPtsDiff(%d, %d) with pts=%d = (%v, %v), want (%v, %v)",
					c.localPts, c.count, c.startPts, applies, gap, c.wantApplies, c.wantGap)
			}
		})
	}
}

func TestApplyPtsQtsSeqDate(t *testing.T) {
	u := newUpdateEngine(nil)
	u.ApplyPts(10)
	u.ApplyQts(20)
	u.ApplySeqDate(30, 1700000000)

	got := u.Cursor()
	want := Cursor{Pts: 10, Qts: 20, Seq: 30, Date: 1700000000}
	if got != want {
		t.Fatalf("Cursor() = %+v, want %+v", got, want)
	}
}

func TestLockDiffExcludesConcurrentFetch(t *testing.T) {
	u := newUpdateEngine(nil)
	if !u.lockDiff() {
		t.Fatalf("first lockDiff should succeed")
	}
	if u.lockDiff() {
		t.Fatalf("second concurrent lockDiff should fail")
	}
	u.unlockDiff()
	if !u.lockDiff() {
		t.Fatalf("lockDiff should succeed again after unlock")
	}
}

func TestChannelCursorIsPerChannel(t *testing.T) {
	u := newUpdateEngine(nil)
	u.ApplyChannelPts(1, 50)
	u.ApplyChannelPts(2, 75)

	if got := u.ChannelCursor(1); got != 50 {
		t.Fatalf("channel 1 pts = %d, want 50", got)
	}
	if got := u.ChannelCursor(2); got != 75 {
		t.Fatalf("channel 2 pts = %d, want 75", got)
	}
	if got := u.ChannelCursor(3); got != 0 {
		t.Fatalf("unseen channel pts = %d, want 0", got)
	}
}

func TestLockChannelExcludesOnlySameChannel(t *testing.T) {
	u := newUpdateEngine(nil)
	if !u.LockChannel(1) {
		t.Fatalf("first lock on channel 1 should succeed")
	}
	if u.LockChannel(1) {
		t.Fatalf("second concurrent lock on channel 1 should fail")
	}
	if !u.LockChannel(2) {
		t.Fatalf("lock on a different channel should succeed independently")
	}
	u.UnlockChannel(1)
	if !u.LockChannel(1) {
		t.Fatalf("lock on channel 1 should succeed again after unlock")
	}
}
