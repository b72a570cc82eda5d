package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfeldman/bookbot-sub000/ai"
	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/errors"
	bbtest "github.com/dfeldman/bookbot-sub000/internal/testing"
	"github.com/dfeldman/bookbot-sub000/job"
	"github.com/dfeldman/bookbot-sub000/logger"
)

// scriptedCaller returns canned outputs in order; past the end of the script
// it keeps returning the last entry
type scriptedCaller struct {
	outputs []string
	calls   int
}

func (s *scriptedCaller) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	idx := s.calls
	if idx >= len(s.outputs) {
		idx = len(s.outputs) - 1
	}
	s.calls++
	if idx < 0 {
		return nil, errors.New("scripted caller has no outputs")
	}
	return &ai.ChatResponse{
		Content:      s.outputs[idx],
		FinishReason: "stop",
		Usage:        ai.Usage{PromptTokens: 100, CompletionTokens: 200},
		Cost:         0.001,
	}, nil
}

func newJobsProcessor(t *testing.T, gen ai.Caller) *job.Processor {
	t.Helper()
	db := bbtest.CreateTestDB(t)
	p := job.NewProcessor(db, gen, job.Config{
		PollInterval:    time.Hour,
		MaxJobsPerCycle: 100,
		RecoveryLimit:   100,
	}, logger.NewTestLogger())
	RegisterAll(p)
	return p
}

func createBook(t *testing.T, p *job.Processor, title string) *book.Book {
	t.Helper()
	b := book.NewBook(title)
	require.NoError(t, p.Books().CreateBook(b))
	return b
}

func TestDemoJobCompletes(t *testing.T) {
	gen := &scriptedCaller{outputs: []string{"A haunting tale of tides."}}
	p := newJobsProcessor(t, gen)
	b := createBook(t, p, "The Silent Harbor")

	j, err := p.Jobs().Submit(b.ID, TypeDemo, job.Props{"steps": 2})
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateCompleted, got.State)
	assert.Greater(t, got.Props.Float("cost"), 0.0)

	logs, err := p.Jobs().ListLogsForJob(j.ID, 20)
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	var sawTagline bool
	for _, l := range logs {
		if l.Level == job.LevelLLM {
			sawTagline = true
			assert.Contains(t, l.Entry, "haunting tale")
		}
	}
	assert.True(t, sawTagline, "demo job must log its generated tagline")

	after, err := p.Books().GetBook(b.ID)
	require.NoError(t, err)
	assert.False(t, after.IsLocked)
}

func TestFailingJobErrorsAndUnlocks(t *testing.T) {
	p := newJobsProcessor(t, &scriptedCaller{})
	b := createBook(t, p, "Doomed")

	j, err := p.Jobs().Submit(b.ID, TypeFailing, nil)
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateError, got.State)
	assert.Contains(t, got.ErrorMessage, FailingMessage)

	after, err := p.Books().GetBook(b.ID)
	require.NoError(t, err)
	assert.False(t, after.IsLocked)
}

func TestFailingJobWithoutBook(t *testing.T) {
	p := newJobsProcessor(t, &scriptedCaller{})

	j, err := p.Jobs().Submit("", TypeFailing, nil)
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateError, got.State)
}

func TestWriteBookPipeline(t *testing.T) {
	gen := &scriptedCaller{outputs: []string{
		"1. The storm arrives\n2. The lighthouse keeper's secret",
		"1. The storm arrives: establishes the stakes.\n2. The secret: the reveal turns the story.",
		"MIRA: the keeper's daughter.\nJONAS: the stranger from the sea.",
		"THE LIGHTHOUSE: granite tower on the headland.",
		"The storm came in off the water at dusk.",
		"Jonas had carried the secret for thirty years.",
	}}
	p := newJobsProcessor(t, gen)
	b := createBook(t, p, "The Keeper")

	j, err := p.Jobs().Submit(b.ID, TypeWriteBook, job.Props{
		"premise": "A lighthouse keeper hides a shipwreck survivor.",
		"scenes":  2,
	})
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateCompleted, got.State)
	assert.InDelta(t, 0.006, got.Props.Float("cost"), 1e-9)

	chunks, err := p.Books().ListLatestChunks(b.ID)
	require.NoError(t, err)

	byID := map[string]*book.Chunk{}
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	require.Contains(t, byID, "outline")
	require.Contains(t, byID, "outline-notes")
	require.Contains(t, byID, "characters")
	require.Contains(t, byID, "settings")
	require.Contains(t, byID, "scene-001")
	require.Contains(t, byID, "scene-002")

	assert.Equal(t, book.ChunkTypeOutline, byID["outline"].Type)
	assert.Equal(t, "The storm came in off the water at dusk.", byID["scene-001"].Content)
	assert.Equal(t, "The storm arrives", byID["scene-001"].Title)

	after, err := p.Books().GetBook(b.ID)
	require.NoError(t, err)
	assert.False(t, after.IsLocked)
}

func TestWriteBookAbortsOnEmptyStep(t *testing.T) {
	gen := &scriptedCaller{outputs: []string{
		"1. Only scene",
		"1. Only scene: everything happens here.",
		"CAST: someone.",
		"   ", // settings step comes back blank
	}}
	p := newJobsProcessor(t, gen)
	b := createBook(t, p, "Half Written")

	j, err := p.Jobs().Submit(b.ID, TypeWriteBook, job.Props{"premise": "A premise."})
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	// Resubmittable failure, not an error; earlier chunks survive
	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)

	chunks, err := p.Books().ListLatestChunks(b.ID)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, c := range chunks {
		ids[c.ChunkID] = true
	}
	assert.True(t, ids["outline"])
	assert.True(t, ids["characters"])
	assert.False(t, ids["settings"])
	assert.False(t, ids["scene-001"])
}

func TestWriteBookRequiresPremise(t *testing.T) {
	p := newJobsProcessor(t, &scriptedCaller{})
	b := createBook(t, p, "No Premise")

	j, err := p.Jobs().Submit(b.ID, TypeWriteBook, nil)
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateError, got.State)
	assert.Contains(t, got.ErrorMessage, "premise")
}

func TestExportJobToProps(t *testing.T) {
	p := newJobsProcessor(t, &scriptedCaller{})
	b := createBook(t, p, "Exported")

	_, err := p.Books().WriteChunk(b.ID, "outline", book.ChunkTypeOutline, "Outline", "1. A scene")
	require.NoError(t, err)
	_, err = p.Books().WriteChunk(b.ID, "scene-001", book.ChunkTypeText, "A scene", "It was a dark night.")
	require.NoError(t, err)

	j, err := p.Jobs().Submit(b.ID, TypeExport, nil)
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateCompleted, got.State)

	out := got.Props.String("output")
	assert.Contains(t, out, "# Exported")
	assert.Contains(t, out, "## Outline")
	assert.Contains(t, out, "It was a dark night.")

	// Export never locks anything
	after, err := p.Books().GetBook(b.ID)
	require.NoError(t, err)
	assert.False(t, after.IsLocked)
}

func TestExportJobToFile(t *testing.T) {
	p := newJobsProcessor(t, &scriptedCaller{})
	b := createBook(t, p, "On Disk")

	_, err := p.Books().WriteChunk(b.ID, "scene-001", book.ChunkTypeText, "Scene", "Words on a page.")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "book.md")
	j, err := p.Jobs().Submit(b.ID, TypeExport, job.Props{"path": path})
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StateCompleted, got.State)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Words on a page.")
}

func TestExportJobEmptyBookFails(t *testing.T) {
	p := newJobsProcessor(t, &scriptedCaller{})
	b := createBook(t, p, "Blank")

	j, err := p.Jobs().Submit(b.ID, TypeExport, nil)
	require.NoError(t, err)
	require.NoError(t, p.RunCycle())

	got, err := p.Jobs().GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, got.State)
}

func TestParseOutlineScenes(t *testing.T) {
	outline := "1. The storm arrives\n\n2) The secret\n- The reveal\n3: ignored beyond max"
	scenes := parseOutlineScenes(outline, 3)
	require.Len(t, scenes, 3)
	assert.Equal(t, "The storm arrives", scenes[0])
	assert.Equal(t, "The secret", scenes[1])
	assert.Equal(t, "The reveal", scenes[2])
}
