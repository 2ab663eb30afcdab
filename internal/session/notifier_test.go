package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epics/internal/domain"
)

func TestNotifier_DeliversInOrder(t *testing.T) {
	n := NewNotifier()

	var mu sync.Mutex
	var got []string
	cancel, err := n.OnNotice(func(notice domain.Notice) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, notice.Message)
	})
	require.NoError(t, err)

	n.publishNotice(domain.Notice{Message: "one"})
	n.publishNotice(domain.Notice{Message: "two"})
	n.publishNotice(domain.Notice{Message: "three"})
	n.Wait()

	mu.Lock()
	assert.Equal(t, []string{"one", "two", "three"}, got)
	mu.Unlock()

	cancel()
	n.publishNotice(domain.Notice{Message: "four"})
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 3)
}

func TestNotifier_State(t *testing.T) {
	n := NewNotifier()

	got := make(chan Snapshot, 1)
	_, err := n.OnState(func(s Snapshot) { got <- s })
	require.NoError(t, err)

	n.publishState(Snapshot{Minted: 3})
	n.Wait()

	assert.Equal(t, int64(3), (<-got).Minted)
}

type noticeCounter struct {
	mu sync.Mutex
	n  int
}

func (c *noticeCounter) onNotice(domain.Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *noticeCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestNotifier_CancelRemovesOnlyItsListener(t *testing.T) {
	n := NewNotifier()
	first, second := &noticeCounter{}, &noticeCounter{}

	cancelFirst, err := n.OnNotice(first.onNotice)
	require.NoError(t, err)
	cancelSecond, err := n.OnNotice(second.onNotice)
	require.NoError(t, err)
	defer cancelSecond()

	cancelFirst()
	cancelFirst()
	n.publishNotice(domain.Notice{Message: "one"})
	n.Wait()

	assert.Equal(t, 0, first.count())
	assert.Equal(t, 1, second.count())
}

func TestNotifier_SameListenerTwice(t *testing.T) {
	n := NewNotifier()
	c := &noticeCounter{}

	cancelA, err := n.OnNotice(c.onNotice)
	require.NoError(t, err)
	_, err = n.OnNotice(c.onNotice)
	require.NoError(t, err)

	n.publishNotice(domain.Notice{Message: "one"})
	n.Wait()
	assert.Equal(t, 2, c.count())

	cancelA()
	n.publishNotice(domain.Notice{Message: "two"})
	n.Wait()
	assert.Equal(t, 3, c.count())
}

func TestNotifier_RejectsNilListener(t *testing.T) {
	n := NewNotifier()

	_, err := n.OnState(nil)
	assert.Error(t, err)
}
