package prompt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresenter struct {
	mu        sync.Mutex
	presented [][]string
	cleared   int
}

func (f *fakePresenter) Present(channelID, surfaceID string, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presented = append(f.presented, tokens)
	return nil
}

func (f *fakePresenter) Clear(channelID, surfaceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakePresenter) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

func testPrompt(timeout time.Duration) Prompt {
	return Prompt{
		ChannelID:   "c1",
		SurfaceID:   "m1",
		RequesterID: "u1",
		Tokens:      []string{"a", "b", "c"},
		Timeout:     timeout,
	}
}

func TestManager_ResolvesOnQualifyingResponse(t *testing.T) {
	pres := &fakePresenter{}
	m := NewManager(pres)

	done := make(chan struct{})
	var token string
	var ok bool
	go func() {
		token, ok = m.Await(testPrompt(2 * time.Second))
		close(done)
	}()

	// Wait until the prompt is armed before responding.
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.armed) == 1
	}, time.Second, 5*time.Millisecond)

	m.HandleResponse(Response{SurfaceID: "m1", AuthorID: "u1", Token: "b"})

	<-done
	assert.True(t, ok)
	assert.Equal(t, "b", token)
	assert.Equal(t, 1, pres.clearCount())
}

func TestManager_IgnoresNonQualifyingResponses(t *testing.T) {
	pres := &fakePresenter{}
	m := NewManager(pres)

	done := make(chan struct{})
	var ok bool
	go func() {
		_, ok = m.Await(testPrompt(150 * time.Millisecond))
		close(done)
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.armed) == 1
	}, time.Second, 5*time.Millisecond)

	m.HandleResponse(Response{SurfaceID: "other", AuthorID: "u1", Token: "a"})
	m.HandleResponse(Response{SurfaceID: "m1", AuthorID: "someone-else", Token: "a"})
	m.HandleResponse(Response{SurfaceID: "m1", AuthorID: "u1", Token: "z"})

	<-done
	assert.False(t, ok)
	assert.Equal(t, 1, pres.clearCount())
}

func TestManager_ExpiresWithoutResponse(t *testing.T) {
	pres := &fakePresenter{}
	m := NewManager(pres)

	token, ok := m.Await(testPrompt(50 * time.Millisecond))
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Equal(t, 1, pres.clearCount())

	// A late response after expiry goes nowhere.
	m.HandleResponse(Response{SurfaceID: "m1", AuthorID: "u1", Token: "a"})
	m.mu.Lock()
	assert.Empty(t, m.armed)
	m.mu.Unlock()
}

func TestManager_ResolvesExactlyOnce(t *testing.T) {
	pres := &fakePresenter{}
	m := NewManager(pres)

	done := make(chan struct{})
	var token string
	go func() {
		token, _ = m.Await(testPrompt(2 * time.Second))
		close(done)
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.armed) == 1
	}, time.Second, 5*time.Millisecond)

	m.HandleResponse(Response{SurfaceID: "m1", AuthorID: "u1", Token: "a"})
	// The duplicate hits a disarmed prompt and is dropped.
	m.HandleResponse(Response{SurfaceID: "m1", AuthorID: "u1", Token: "c"})

	<-done
	assert.Equal(t, "a", token)
}

func TestManager_PresentsTokensInOrder(t *testing.T) {
	pres := &fakePresenter{}
	m := NewManager(pres)

	_, _ = m.Await(testPrompt(10 * time.Millisecond))

	pres.mu.Lock()
	defer pres.mu.Unlock()
	require.Len(t, pres.presented, 1)
	assert.Equal(t, []string{"a", "b", "c"}, pres.presented[0])
}

func TestManager_ConcurrentPromptsAreIndependent(t *testing.T) {
	pres := &fakePresenter{}
	m := NewManager(pres)

	p2 := testPrompt(2 * time.Second)
	p2.SurfaceID = "m2"
	p2.RequesterID = "u2"

	var wg sync.WaitGroup
	var token1, token2 string
	wg.Add(2)
	go func() {
		defer wg.Done()
		token1, _ = m.Await(testPrompt(2 * time.Second))
	}()
	go func() {
		defer wg.Done()
		token2, _ = m.Await(p2)
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.armed) == 2
	}, time.Second, 5*time.Millisecond)

	m.HandleResponse(Response{SurfaceID: "m2", AuthorID: "u2", Token: "c"})
	m.HandleResponse(Response{SurfaceID: "m1", AuthorID: "u1", Token: "a"})

	wg.Wait()
	assert.Equal(t, "a", token1)
	assert.Equal(t, "c", token2)
}
