package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAddAndGetKeepsOrder(t *testing.T) {
	store := NewStore(10)
	store.Add("s1", RoleUser, "first")
	store.Add("s1", RoleAssistant, "second")
	store.Add("s1", RoleUser, "third")

	messages := store.Get("s1", 0)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, "third", messages[2].Content)
}

func TestStoreEvictsOldestAtCapacity(t *testing.T) {
	store := NewStore(3)
	for i := 1; i <= 5; i++ {
		store.Add("s1", RoleUser, fmt.Sprintf("msg-%d", i))
	}

	messages := store.Get("s1", 0)
	require.Len(t, messages, 3)
	assert.Equal(t, "msg-3", messages[0].Content)
	assert.Equal(t, "msg-5", messages[2].Content)
}

func TestStoreGetHonorsMax(t *testing.T) {
	store := NewStore(10)
	for i := 1; i <= 5; i++ {
		store.Add("s1", RoleUser, fmt.Sprintf("msg-%d", i))
	}

	// The newest max messages, still oldest first.
	messages := store.Get("s1", 2)
	require.Len(t, messages, 2)
	assert.Equal(t, "msg-4", messages[0].Content)
	assert.Equal(t, "msg-5", messages[1].Content)
}

func TestStoreSessionsAreIsolated(t *testing.T) {
	store := NewStore(10)
	store.Add("s1", RoleUser, "one")
	store.Add("s2", RoleUser, "two")

	assert.Equal(t, 1, store.Len("s1"))
	assert.Equal(t, 1, store.Len("s2"))
	assert.Equal(t, 0, store.Len("s3"))
}

func TestStoreFormatted(t *testing.T) {
	store := NewStore(10)
	store.Add("s1", RoleUser, "restart nginx")
	store.Add("s1", RoleAssistant, "Which host?")

	assert.Equal(t, "user: restart nginx\nassistant: Which host?", store.Formatted("s1", 0))
	assert.Equal(t, "", store.Formatted("unknown", 0))
}

func TestStoreClear(t *testing.T) {
	store := NewStore(10)
	store.Add("s1", RoleUser, "one")
	store.Clear("s1")
	assert.Equal(t, 0, store.Len("s1"))
}

func TestStoreGetReturnsCopy(t *testing.T) {
	store := NewStore(10)
	store.Add("s1", RoleUser, "original")

	messages := store.Get("s1", 0)
	messages[0].Content = "mutated"

	assert.Equal(t, "original", store.Get("s1", 0)[0].Content)
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			session := fmt.Sprintf("s-%d", n%2)
			for j := 0; j < 25; j++ {
				store.Add(session, RoleUser, "m")
				_ = store.Get(session, 5)
				_ = store.Formatted(session, 5)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len("s-0"))
	assert.Equal(t, 50, store.Len("s-1"))
}

func TestNewStorePanicsOnNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { NewStore(0) })
}
