package utils

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("submission-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done

	assert.Equal(t, 1, km.Len())
	unlockA()
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutexKeyFromReusedRequestBuffer(t *testing.T) {
	km := NewKeyedMutex()
	held := make(chan func(), 1)

	// Default fiber config hands out params that alias the request buffer.
	app := fiber.New()
	app.Get("/submissions/:id", func(c *fiber.Ctx) error {
		unlock := km.Lock(c.Params("id"))
		if c.Params("id") == "sub-aaaa" {
			held <- unlock
		} else {
			unlock()
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	for _, id := range []string{"sub-aaaa", "sub-bbbb"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/submissions/"+id, nil), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	unlockA := <-held

	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("sub-aaaa")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired sub-aaaa while the first still holds it")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired sub-aaaa after release")
	}
	assert.Eventually(t, func() bool { return km.Len() == 0 }, time.Second, 5*time.Millisecond)
}
