package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/repository"
	"github.com/xiaot623/agentdir/tests/helpers"
)

func boolPtr(b bool) *bool { return &b }

func seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	agents := []domain.AgentRecord{
		{AgentName: "alpha.example.com", Active: true, Verified: true, Descriptor: domain.Descriptor{
			Skills: []string{"Summarization"}, Protocols: []string{"REST", "A2A"}, A2ACompliant: true, SupportedTasks: []string{"summarize"}}},
		{AgentName: "bravo.example.com", Active: true, Descriptor: domain.Descriptor{
			Skills: []string{"summary-writing"}, Protocols: []string{"gRPC"}, A2ACompliant: true, SupportedTasks: []string{"Summarize"}}},
		{AgentName: "charlie.example.com", Active: true, Descriptor: domain.Descriptor{
			Skills: []string{"translation"}, Protocols: []string{"REST"}, SupportedTasks: []string{"translate"}}},
		{AgentName: "delta.example.com", Active: false, Descriptor: domain.Descriptor{
			Skills: []string{"summarization"}, Protocols: []string{"A2A"}, A2ACompliant: true, SupportedTasks: []string{"summarize"}}},
	}
	for i := range agents {
		agents[i].CertificateFingerprint = "fp"
		agents[i].Descriptor = agents[i].Descriptor.Normalize()
		agents[i].CreatedAt, agents[i].UpdatedAt = now, now
		require.NoError(t, s.CreateAgent(ctx, &agents[i]))
	}
}

func names(t *testing.T, idx Index, f Filter) []string {
	t.Helper()
	var out []string
	for agent, err := range idx.Search(context.Background(), f) {
		require.NoError(t, err)
		out = append(out, agent.AgentName)
	}
	return out
}

func indexes(t *testing.T) map[string]Index {
	t.Helper()
	s := helpers.NewTestSQLiteStore(t)
	seed(t, s)

	bi, err := NewBleveIndex(s, 2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bi.Close() })
	require.NoError(t, bi.Rebuild(context.Background()))

	return map[string]Index{
		"store": NewStoreIndex(s, 2),
		"bleve": bi,
	}
}

func TestSearchFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"alpha.example.com", "bravo.example.com", "charlie.example.com", "delta.example.com"}},
		{"skill prefix ignores case", Filter{Skill: "SUMM"}, []string{"alpha.example.com", "bravo.example.com", "delta.example.com"}},
		{"skill exact", Filter{Skill: "translation"}, []string{"charlie.example.com"}},
		{"protocol", Filter{Protocol: "rest"}, []string{"alpha.example.com", "charlie.example.com"}},
		{"task", Filter{Task: "SUMMARIZE"}, []string{"alpha.example.com", "bravo.example.com", "delta.example.com"}},
		{"conjunction", Filter{Skill: "summ", Active: boolPtr(true), A2ACompliant: boolPtr(true)}, []string{"alpha.example.com", "bravo.example.com"}},
		{"verified", Filter{Verified: boolPtr(true)}, []string{"alpha.example.com"}},
		{"not compliant", Filter{A2ACompliant: boolPtr(false)}, []string{"charlie.example.com"}},
		{"after cursor", Filter{After: "bravo.example.com"}, []string{"charlie.example.com", "delta.example.com"}},
		{"no match", Filter{Skill: "cooking"}, nil},
	}

	for backend, idx := range indexes(t) {
		for _, tt := range tests {
			t.Run(backend+"/"+tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, names(t, idx, tt.filter))
			})
		}
	}
}

func TestSearchIsLazyAndRestartable(t *testing.T) {
	for backend, idx := range indexes(t) {
		t.Run(backend, func(t *testing.T) {
			seq := idx.Search(context.Background(), Filter{Active: boolPtr(true)})

			var first []string
			for agent, err := range seq {
				require.NoError(t, err)
				first = append(first, agent.AgentName)
				if len(first) == 1 {
					break
				}
			}
			assert.Equal(t, []string{"alpha.example.com"}, first)

			var again []string
			for agent, err := range seq {
				require.NoError(t, err)
				again = append(again, agent.AgentName)
			}
			assert.Equal(t, []string{"alpha.example.com", "bravo.example.com", "charlie.example.com"}, again)
		})
	}
}

func TestPage(t *testing.T) {
	for backend, idx := range indexes(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			page, cursor, err := Page(ctx, idx, Filter{}, 3)
			require.NoError(t, err)
			require.Len(t, page, 3)
			assert.Equal(t, "charlie.example.com", cursor)

			page, cursor, err = Page(ctx, idx, Filter{After: cursor}, 3)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "delta.example.com", page[0].AgentName)
			assert.Empty(t, cursor)
		})
	}
}

func TestBleveIndexFollowsObservedChanges(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	bi, err := NewBleveIndex(s, 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bi.Close() })

	now := time.Now().UTC()
	agent := &domain.AgentRecord{
		AgentName:              "echo.example.com",
		CertificateFingerprint: "fp",
		Active:                 true,
		Descriptor:             domain.Descriptor{Skills: []string{"ocr"}, Protocols: []string{"REST"}}.Normalize(),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	require.NoError(t, s.CreateAgent(ctx, agent))
	assert.Empty(t, names(t, bi, Filter{Skill: "ocr"}), "not indexed until observed")

	bi.Observe(ctx, *agent)
	assert.Equal(t, []string{"echo.example.com"}, names(t, bi, Filter{Skill: "ocr", Active: boolPtr(true)}))

	agent.Active = false
	ok, err := s.UpdateAgent(ctx, agent, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, names(t, bi, Filter{Active: boolPtr(true)}), "store re-check hides stale index entries")

	bi.Observe(ctx, *agent)
	assert.Equal(t, []string{"echo.example.com"}, names(t, bi, Filter{Active: boolPtr(false)}))
}

func TestBleveIndexIgnoresOutOfOrderNotifications(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	bi, err := NewBleveIndex(s, 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bi.Close() })

	now := time.Now().UTC()
	v0 := domain.AgentRecord{
		AgentName:              "foxtrot.example.com",
		CertificateFingerprint: "fp",
		Active:                 true,
		Descriptor:             domain.Descriptor{Skills: []string{"ocr"}, Protocols: []string{"REST"}}.Normalize(),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	require.NoError(t, s.CreateAgent(ctx, &v0))

	v1 := v0
	v1.Descriptor = domain.Descriptor{Skills: []string{"vision"}, Protocols: []string{"REST"}}.Normalize()
	ok, err := s.UpdateAgent(ctx, &v1, 0)
	require.NoError(t, err)
	require.True(t, ok)

	// The newer write is delivered first, the older one last.
	bi.Observe(ctx, v1)
	bi.Observe(ctx, v0)

	assert.Equal(t, []string{"foxtrot.example.com"}, names(t, bi, Filter{Skill: "vision"}))
	assert.Empty(t, names(t, bi, Filter{Skill: "ocr"}))
}

func TestBleveIndexUsesCommittedState(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	bi, err := NewBleveIndex(s, 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bi.Close() })

	bi.Observe(ctx, domain.AgentRecord{AgentName: "ghost.example.com", Active: true})
	assert.Empty(t, names(t, bi, Filter{Active: boolPtr(true)}), "records missing from the store are not indexed")
}

func TestStoreIndexPagesThroughManyAgents(t *testing.T) {
	ctx := context.Background()
	s := helpers.NewTestSQLiteStore(t)
	now := time.Now().UTC()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.CreateAgent(ctx, &domain.AgentRecord{
			AgentName:              fmt.Sprintf("agent-%02d.example.com", i),
			CertificateFingerprint: "fp",
			Active:                 true,
			Descriptor:             domain.Descriptor{Protocols: []string{"REST"}}.Normalize(),
			CreatedAt:              now,
			UpdatedAt:              now,
		}))
	}
	got := names(t, NewStoreIndex(s, 4), Filter{})
	require.Len(t, got, 25)
	assert.Equal(t, "agent-00.example.com", got[0])
	assert.Equal(t, "agent-24.example.com", got[24])
}
