// Package call defines the persisted shape of tracked operations: their
// identity, the key layout derived from it and the replayable history.
package call

import (
	"fmt"
	"io"
)

// Identity is the stable name of a tracked operation. It is the namespace
// prefix for the counter and the two history lists of that operation.
type Identity string

// CounterKey is the key holding the invocation counter.
func (id Identity) CounterKey() string { return string(id) }

// InputsKey is the key of the list of rendered argument tuples.
func (id Identity) InputsKey() string { return string(id) + ":inputs" }

// OutputsKey is the key of the list of rendered results.
func (id Identity) OutputsKey() string { return string(id) + ":outputs" }

// Record pairs the i-th recorded input with the i-th recorded output.
type Record struct {
	Index  int    `json:"index"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// History is the reconstructed call log of one operation.
type History struct {
	Identity Identity `json:"identity"`
	Count    int64    `json:"count"`
	Calls    []Record `json:"calls"`
	// Pending is the number of inputs without a matching output: calls that
	// failed inside the operation, or that are still running.
	Pending int `json:"pending"`
}

// NewHistory pairs inputs with outputs in call order. Surplus entries on
// either side are not paired.
func NewHistory(id Identity, count int64, inputs, outputs []string) *History {
	n := min(len(inputs), len(outputs))
	h := &History{
		Identity: id,
		Count:    count,
		Calls:    make([]Record, 0, n),
	}
	for i := range n {
		h.Calls = append(h.Calls, Record{Index: i, Input: inputs[i], Output: outputs[i]})
	}
	if len(inputs) > len(outputs) {
		h.Pending = len(inputs) - len(outputs)
	}
	return h
}

// WriteTo renders the history as replay text:
//
//	<identity> was called <N> times:
//	<identity>(*<input>) -> <output>
func (h *History) WriteTo(w io.Writer) (int64, error) {
	var total int64
	n, err := fmt.Fprintf(w, "%s was called %d times:\n", h.Identity, h.Count)
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, rec := range h.Calls {
		n, err = fmt.Fprintf(w, "%s(*%s) -> %s\n", h.Identity, rec.Input, rec.Output)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
