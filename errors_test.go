package mtproto

import "testing"

func TestMigrationDC(t *testing.T) {
	cases := []struct {
		in     string
		wantN  int
		wantOK bool
	}{
		{"USER_MIGRATE_2", 2, true},
		{"PHONE_MIGRATE_5", 5, true},
		{"NETWORK_MIGRATE_1", 1, true},
		{"USER_MIGRATE_0", 0, false},
		{"FLOOD_WAIT_10", 0, false},
		{"AUTH_KEY_UNREGISTERED", 0, false},
	}
	for _, c := range cases {
		n, ok := migrationDC(c.in)
		if n != c.wantN || ok != c.wantOK {
			t.Fatalf("migrationDC(%q) = (%d, %v), want (%d, %v)", c.in, n, ok, c.wantN, c.wantOK)
		}
	}
}

func TestFloodWaitSeconds(t *testing.T) {
	cases := []struct {
		in     string
		wantN  int
		wantOK bool
	}{
		{"FLOOD_WAIT_30", 30, true},
		{"FLOOD_WAIT_0", 0, true},
		{"USER_MIGRATE_2", 0, false},
		{"FLOOD_WAIT_abc", 0, false},
	}
	for _, c := range cases {
		n, ok := floodWaitSeconds(c.in)
		if n != c.wantN || ok != c.wantOK {
			t.Fatalf("floodWaitSeconds(%q) = (%d, %v), want (%d, %v)", c.in, n, ok, c.wantN, c.wantOK)
		}
	}
}
