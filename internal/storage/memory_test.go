package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func TestMemoryPutOverwrites(t *testing.T) {
	m := NewMemory("memory://out", []byte("key"))
	ctx := context.Background()

	if err := m.Put(ctx, "report.xlsx", []byte("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Put(ctx, "report.xlsx", []byte("second")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if m.Len() != 1 {
		t.Errorf("expected 1 object after overwrite, got %d", m.Len())
	}
	data, ok := m.Get("report.xlsx")
	if !ok || string(data) != "second" {
		t.Errorf("expected overwritten content, got %q (ok=%v)", data, ok)
	}
}

func TestMemorySignedURLRespectsTTL(t *testing.T) {
	m := NewMemory("memory://out", []byte("key")).WithClock(fixedNow)
	if err := m.Put(context.Background(), "report.xlsx", []byte("data")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	link, err := m.SignedReadURL(context.Background(), "report.xlsx", time.Hour)
	if err != nil {
		t.Fatalf("SignedReadURL failed: %v", err)
	}
	if want := fixedNow().Add(time.Hour); !link.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, link.ExpiresAt)
	}

	if !m.VerifyURL(link.URL, "report.xlsx", fixedNow().Add(59*time.Minute)) {
		t.Error("link must verify before expiry")
	}
	if m.VerifyURL(link.URL, "report.xlsx", fixedNow().Add(61*time.Minute)) {
		t.Error("link must not verify after expiry")
	}
	if m.VerifyURL(link.URL, "other.xlsx", fixedNow()) {
		t.Error("link must not verify for a different object")
	}
}

func TestMemoryRejectsTamperedSignature(t *testing.T) {
	m := NewMemory("memory://out", []byte("key")).WithClock(fixedNow)
	link, err := m.SignedReadURL(context.Background(), "report.xlsx", time.Hour)
	if err != nil {
		t.Fatalf("SignedReadURL failed: %v", err)
	}

	tampered := link.URL + "00"
	if m.VerifyURL(tampered, "report.xlsx", fixedNow()) {
		t.Error("tampered signature must not verify")
	}
}

func TestMemoryWithoutSigningKey(t *testing.T) {
	m := NewMemory("memory://out", nil)
	if err := m.Put(context.Background(), "report.xlsx", []byte("data")); err != nil {
		t.Fatalf("Put must still work without a signing key: %v", err)
	}

	_, err := m.SignedReadURL(context.Background(), "report.xlsx", time.Hour)
	if !errors.Is(err, ErrNoSigningCredential) {
		t.Errorf("expected ErrNoSigningCredential, got %v", err)
	}
	if _, ok := m.Get("report.xlsx"); !ok {
		t.Error("published object must remain present")
	}
}
