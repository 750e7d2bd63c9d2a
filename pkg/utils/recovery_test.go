package utils

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverAsError(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		fn := func() (err error) {
			defer RecoverAsError(&err)
			panic("test panic")
		}

		err := fn()
		require.Error(t, err)

		var panicErr *PanicError
		require.True(t, errors.As(err, &panicErr))
		assert.Equal(t, "test panic", panicErr.Value)
		assert.NotEmpty(t, panicErr.StackTrace)
		assert.Equal(t, "panic: test panic", err.Error())
	})

	t.Run("no error when no panic", func(t *testing.T) {
		fn := func() (err error) {
			defer RecoverAsError(&err)
			return nil
		}
		assert.NoError(t, fn())
	})

	t.Run("preserves original error", func(t *testing.T) {
		originalErr := errors.New("original error")
		fn := func() (err error) {
			defer RecoverAsError(&err)
			return originalErr
		}
		assert.Equal(t, originalErr, fn())
	})
}

func TestRecoverWithCallback(t *testing.T) {
	t.Run("calls callback on panic", func(t *testing.T) {
		var captured error
		func() {
			defer RecoverWithCallback(func(err error) { captured = err })
			panic("callback test")
		}()

		var panicErr *PanicError
		require.True(t, errors.As(captured, &panicErr))
		assert.Equal(t, "callback test", panicErr.Value)
	})

	t.Run("nil callback is allowed", func(t *testing.T) {
		assert.NotPanics(t, func() {
			defer RecoverWithCallback(nil)
			panic("ignored")
		})
	})

	t.Run("concurrent workers", func(t *testing.T) {
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			count int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer RecoverWithCallback(func(error) {
					mu.Lock()
					count++
					mu.Unlock()
				})
				if i%2 == 0 {
					panic(i)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 5, count)
	})
}
