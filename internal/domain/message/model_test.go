package message

import "testing"

func TestAckLevelStatus(t *testing.T) {
	cases := []struct {
		ack  AckLevel
		want Status
	}{
		{AckError, StatusFailed},
		{AckPending, StatusPending},
		{AckServer, StatusSent},
		{AckDevice, StatusDelivered},
		{AckRead, StatusRead},
		{AckPlayed, StatusRead},
		{AckLevel(9), ""},
	}
	for _, c := range cases {
		if got := c.ack.Status(); got != c.want {
			t.Fatalf("AckLevel(%d).Status() = %q, want %q", c.ack, got, c.want)
		}
	}
}

func TestStatusRankLadder(t *testing.T) {
	ladder := []Status{StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed}
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Rank() <= ladder[i-1].Rank() {
			t.Fatalf("%s should outrank %s", ladder[i], ladder[i-1])
		}
	}
	if Status("bogus").Rank() != -1 {
		t.Fatalf("unknown status should rank below everything")
	}
}

func TestContactFollowsDirection(t *testing.T) {
	in := Message{Direction: DirectionIn, Sender: "a@s.whatsapp.net", Recipient: "me@s.whatsapp.net"}
	if in.Contact() != "a@s.whatsapp.net" {
		t.Fatalf("inbound contact should be the sender, got %q", in.Contact())
	}
	out := Message{Direction: DirectionOut, Sender: "me@s.whatsapp.net", Recipient: "a@s.whatsapp.net"}
	if out.Contact() != "a@s.whatsapp.net" {
		t.Fatalf("outbound contact should be the recipient, got %q", out.Contact())
	}
}
