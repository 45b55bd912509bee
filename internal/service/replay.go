package service

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/Strob0t/recall/internal/domain"
	"github.com/Strob0t/recall/internal/domain/call"
	"github.com/Strob0t/recall/internal/port/kvstore"
)

// Binding ties a tracked operation's identity to the store its history lives
// in. The zero Binding is unbound.
type Binding struct {
	Identity call.Identity
	Store    kvstore.Store
}

// Bound reports whether b names an identity and carries a store handle.
func (b Binding) Bound() bool {
	return b.Identity != "" && b.Store != nil
}

// History reads the counter and both history lists of b. It returns nil
// without error for an unbound Binding. A missing counter reads as zero.
// Nothing is written.
func History(ctx context.Context, b Binding) (*call.History, error) {
	if !b.Bound() {
		return nil, nil
	}
	id := b.Identity

	count, err := readCounter(ctx, b.Store, id.CounterKey())
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", id, err)
	}
	inputs, err := b.Store.LRange(ctx, id.InputsKey(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("replay %s inputs: %w", id, err)
	}
	outputs, err := b.Store.LRange(ctx, id.OutputsKey(), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("replay %s outputs: %w", id, err)
	}

	return call.NewHistory(id, count, toStrings(inputs), toStrings(outputs)), nil
}

// Replay writes the replay text of b to w:
//
//	ValueStore.Store was called 2 times:
//	ValueStore.Store(*('a',)) -> 6f1c...
//	ValueStore.Store(*(42,)) -> 9b2e...
//
// An unbound Binding writes nothing and returns nil.
func Replay(ctx context.Context, w io.Writer, b Binding) error {
	h, err := History(ctx, b)
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}
	_, err = h.WriteTo(w)
	return err
}

// readCounter returns the integer stored under key, or zero when absent.
func readCounter(ctx context.Context, kv kvstore.Store, key string) (int64, error) {
	raw, found, err := kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %s: %q", domain.ErrMalformed, key, raw)
	}
	return n, nil
}

func toStrings(vals [][]byte) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}
