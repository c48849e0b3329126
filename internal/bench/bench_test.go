package bench_test

import (
	"errors"
	"testing"

	"github.com/oneclientcore/runtime/internal/bench"
)

func TestRunPreservesRequestOrder(t *testing.T) {
	requests := make([][]byte, 20)
	for i := range requests {
		requests[i] = []byte{byte(i)}
	}

	perform := func(req []byte) ([]byte, error) {
		if req[0]%2 == 0 {
			return nil, errors.New("even index fails")
		}
		return req, nil
	}

	results := bench.Run(4, perform, requests)
	if len(results) != len(requests) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(requests))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("results[%d].Index = %d, want %d", i, r.Index, i)
		}
		wantErr := i%2 == 0
		if (r.Err != nil) != wantErr {
			t.Errorf("results[%d].Err = %v, want error=%v", i, r.Err, wantErr)
		}
	}

	summary := bench.Summarize(results)
	if summary.Total != 20 || summary.Succeeded != 10 || summary.Failed != 10 {
		t.Errorf("summary = %+v, want 20/10/10", summary)
	}
}
