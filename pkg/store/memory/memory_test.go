package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/store"
	"github.com/ArionMiles/cardtracker/pkg/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

func TestInsertRejectsInvalid(t *testing.T) {
	s := New()
	c := storetest.Candidate("", "JCB", 100, time.Now())
	if _, _, err := s.Insert(context.Background(), c); !errors.Is(err, store.ErrInvalidRecord) {
		t.Errorf("empty message id: got %v, want ErrInvalidRecord", err)
	}
	c = storetest.Candidate("id", "JCB", -1, time.Now())
	if _, _, err := s.Insert(context.Background(), c); !errors.Is(err, store.ErrInvalidRecord) {
		t.Errorf("negative amount: got %v, want ErrInvalidRecord", err)
	}
}

func TestInsertCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := New().Insert(ctx, storetest.Candidate("id", "JCB", 1, time.Now())); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
