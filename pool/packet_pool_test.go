package pool

import "testing"

func TestGetReturnsWritableZeroLengthBuffer(t *testing.T) {
	p := New()
	b := p.Get()
	if len(b.Data) != 0 {
		t.Fatalf("expected zero-length buffer, got len %d", len(b.Data))
	}
	if cap(b.Data) < BufferSize {
		t.Fatalf("expected capacity >= %d, got %d", BufferSize, cap(b.Data))
	}
	b.Data = append(b.Data, []byte("hello")...)
	if string(b.Data) != "hello" {
		t.Fatalf("unexpected data: %q", b.Data)
	}
}

func TestReleaseAndReuse(t *testing.T) {
	p := New()
	b := p.Get()
	b.Release()
	b2 := p.Get()
	if len(b2.Data) != 0 {
		t.Fatalf("expected reused buffer to start zero-length")
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	p := New()
	b := p.Get()
	b.Release()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected double release to panic")
		}
	}()
	b.Release()
}
