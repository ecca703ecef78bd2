// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package pool

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestSubmitRunsAndReturnsResult(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	fut := p.Submit(func() (any, error) { return 42, nil })
	v, err := fut.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("result = %v, want 42", v)
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	wantErr := errors.New("boom")
	fut := p.Submit(func() (any, error) { return nil, wantErr })
	_, err := fut.Wait()
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestManyTasksAllComplete(t *testing.T) {
	p := New(8)
	defer p.Shutdown()

	const n = 2000
	var counter atomic.Int64
	futs := make([]*Future, n)
	for i := 0; i < n; i++ {
		futs[i] = p.Submit(func() (any, error) {
			counter.Add(1)
			return nil, nil
		})
	}
	for _, f := range futs {
		if _, err := f.Wait(); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if counter.Load() != n {
		t.Fatalf("counter = %d, want %d", counter.Load(), n)
	}
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(2)
	p.Shutdown()

	fut := p.Submit(func() (any, error) {
		t.Fatal("task ran after Shutdown")
		return nil, nil
	})
	_, err := fut.Wait()
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("err = %v, want ErrShutdown", err)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New(2)
	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		p.Submit(func() (any, error) {
			counter.Add(1)
			return nil, nil
		})
	}
	p.Shutdown()
	if counter.Load() != 100 {
		t.Fatalf("counter = %d, want 100 (Shutdown should drain pending tasks)", counter.Load())
	}
}
