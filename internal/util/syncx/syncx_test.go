// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"errors"
	"sync"
	"testing"

	"go.astrophena.name/devbox/internal/testutil"
)

func TestLazy(t *testing.T) {
	t.Parallel()

	var (
		l     Lazy[int]
		mu    sync.Mutex
		count int
	)
	f := func() int {
		mu.Lock()
		defer mu.Unlock()
		count++
		return count
	}

	var wg sync.WaitGroup
	got := make([]int, 10)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = l.Get(f)
		}()
	}
	wg.Wait()
	testutil.AssertEqual(t, got, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	testutil.AssertEqual(t, count, 1)
}

func TestLazyErr(t *testing.T) {
	t.Parallel()

	var (
		l     Lazy[string]
		calls int
	)
	errBoom := errors.New("something went wrong")
	f := func() (string, error) {
		calls++
		return "", errBoom
	}

	for range 2 {
		v, err := l.GetErr(f)
		testutil.AssertEqual(t, v, "")
		if !errors.Is(err, errBoom) {
			t.Fatalf("GetErr() error = %v, want %v", err, errBoom)
		}
	}
	testutil.AssertEqual(t, calls, 1)
}
