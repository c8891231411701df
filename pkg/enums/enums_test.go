package enums

import "testing"

func TestParseCockStatus(t *testing.T) {
	got, err := ParseCockStatus("champion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != CockStatusChampion {
		t.Fatalf("expected champion, got %s", got)
	}
	if _, err := ParseCockStatus("Champion"); err == nil {
		t.Fatal("expected case-sensitive parse to fail")
	}
}

func TestPaymentStateVerifiable(t *testing.T) {
	cases := map[PaymentState]bool{
		PaymentStatePending:   true,
		PaymentStateVerifying: true,
		PaymentStateApproved:  false,
		PaymentStateRejected:  false,
	}
	for state, want := range cases {
		if got := state.Verifiable(); got != want {
			t.Fatalf("%s: expected %v got %v", state, want, got)
		}
	}
}

func TestResourceKindPerCock(t *testing.T) {
	if ResourceCocks.PerCock() {
		t.Fatal("cocks are counted per owner")
	}
	for _, k := range []ResourceKind{ResourceTrainings, ResourceFights, ResourceVaccines} {
		if !k.PerCock() {
			t.Fatalf("%s should be per cock", k)
		}
	}
	if ResourceKind("listings").IsValid() {
		t.Fatal("listings are not quota tracked")
	}
}

func TestParseOutboxEventType(t *testing.T) {
	if _, err := ParseOutboxEventType("payment_approved"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected unknown event to fail")
	}
}
