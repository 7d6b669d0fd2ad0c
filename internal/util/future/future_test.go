package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestAwait(t *testing.T) {
	defer goleak.VerifyNone(t)

	type testCase struct {
		name    string
		fn      func() (int, error)
		wantVal int
		wantErr bool
	}

	testCases := []testCase{
		{
			name:    "value",
			fn:      func() (int, error) { return 42, nil },
			wantVal: 42,
		},
		{
			name:    "error",
			fn:      func() (int, error) { return 0, errors.New("failure") },
			wantErr: true,
		},
		{
			name: "delayed value",
			fn: func() (int, error) {
				time.Sleep(5 * time.Millisecond)
				return 7, nil
			},
			wantVal: 7,
		},
		{
			name:    "panic",
			fn:      func() (int, error) { panic("boom") },
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			val, err := New(tc.fn).Await()

			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error: %v, got: %v", tc.wantErr, err)
			}
			if val != tc.wantVal {
				t.Fatalf("expected value: %d, got: %d", tc.wantVal, val)
			}
		})
	}
}

func TestPanicErrorUnwrapsErrorValues(t *testing.T) {
	sentinel := errors.New("sentinel")
	_, err := New(func() (int, error) { panic(sentinel) }).Await()

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %T", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected panic value to unwrap to sentinel, got %v", err)
	}
}

func TestAwaitContextDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	f := New(func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := f.AwaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}

	close(release)
	v, err := f.AwaitContext(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("expected (1, nil), got (%d, %v)", v, err)
	}
}

func TestAwaitContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	f := New(func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.AwaitContext(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	if v, err := f.Await(); err != nil || v != 1 {
		t.Fatalf("expected (1, nil), got (%d, %v)", v, err)
	}
}
