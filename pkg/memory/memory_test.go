package memory

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/llms"
)

func newTestService(maxTurns, maxTokens int) *Service {
	return NewService(config.SessionConfig{MaxTurns: maxTurns, MaxTokens: maxTokens})
}

func TestService_AppendAndHistory(t *testing.T) {
	svc := newTestService(10, 10000)

	svc.Append("s1", llms.Message{Role: llms.RoleUser, Content: "question"})
	svc.Append("s1", llms.Message{Role: llms.RoleAssistant, Content: "answer"})

	history := svc.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, "question", history[0].Content)
	assert.Equal(t, "answer", history[1].Content)
}

func TestService_HistoryDoesNotCreateSession(t *testing.T) {
	svc := newTestService(10, 10000)

	assert.Empty(t, svc.History("ghost"))
	assert.False(t, svc.Exists("ghost"))
}

func TestService_TurnCapEvictsOldest(t *testing.T) {
	svc := newTestService(3, 10000)

	for i := 0; i < 5; i++ {
		svc.Append("s1", llms.Message{Role: llms.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	history := svc.History("s1")
	require.Len(t, history, 3)
	assert.Equal(t, "turn 2", history[0].Content)
	assert.Equal(t, "turn 4", history[2].Content)
}

func TestService_TokenCapEvictsOldest(t *testing.T) {
	// Each turn is roughly 26 tokens; cap at two turns' worth.
	svc := newTestService(100, 55)

	for i := 0; i < 4; i++ {
		svc.Append("s1", llms.Message{
			Role:    llms.RoleUser,
			Content: fmt.Sprintf("%d %s", i, strings.Repeat("x", 98)),
		})
	}

	history := svc.History("s1")
	require.Len(t, history, 2)
	assert.True(t, strings.HasPrefix(history[0].Content, "2 "))
	assert.True(t, strings.HasPrefix(history[1].Content, "3 "))
}

func TestService_OversizedSingleTurnDropped(t *testing.T) {
	svc := newTestService(10, 5)

	svc.Append("s1", llms.Message{Role: llms.RoleUser, Content: strings.Repeat("y", 400)})

	// The lone turn exceeds the cap on its own and is evicted, but the
	// session still exists.
	assert.Empty(t, svc.History("s1"))
	assert.True(t, svc.Exists("s1"))
}

func TestService_HistoryReturnsCopy(t *testing.T) {
	svc := newTestService(10, 10000)
	svc.Append("s1", llms.Message{Role: llms.RoleUser, Content: "original"})

	history := svc.History("s1")
	history[0].Content = "mutated"

	assert.Equal(t, "original", svc.History("s1")[0].Content)
}

func TestService_ClearAndIsolation(t *testing.T) {
	svc := newTestService(10, 10000)
	svc.Append("a", llms.Message{Role: llms.RoleUser, Content: "for a"})
	svc.Append("b", llms.Message{Role: llms.RoleUser, Content: "for b"})

	svc.Clear("a")
	svc.Clear("never-existed")

	assert.False(t, svc.Exists("a"))
	assert.Empty(t, svc.History("a"))
	require.Len(t, svc.History("b"), 1)
}

func TestService_ConcurrentAccess(t *testing.T) {
	svc := newTestService(100, 100000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n%3)
			for j := 0; j < 50; j++ {
				svc.Append(id, llms.Message{Role: llms.RoleUser, Content: "turn"})
				svc.History(id)
				svc.Exists(id)
			}
		}(i)
	}
	wg.Wait()
}

func TestService_SessionCount(t *testing.T) {
	svc := newTestService(10, 10000)
	assert.Equal(t, 0, svc.SessionCount())

	svc.Append("a", llms.Message{Role: llms.RoleUser, Content: "hi"})
	svc.Append("b", llms.Message{Role: llms.RoleUser, Content: "hi"})
	assert.Equal(t, 2, svc.SessionCount())

	svc.Clear("a")
	assert.Equal(t, 1, svc.SessionCount())
}
