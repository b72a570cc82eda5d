package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/dfeldman/bookbot-sub000/ai"
	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/errors"
	"github.com/dfeldman/bookbot-sub000/job"
)

// TypeWriteBook is the generation pipeline: outline, outline annotation,
// characters, settings, then one prose chunk per outline scene. Each step
// persists its chunk before
// the next begins, so a mid-pipeline failure keeps everything already written
// and the job can be resubmitted.
const TypeWriteBook = "write-book"

const (
	writeBookDefaultScenes     = 8
	writeBookDefaultSceneWords = 800
)

// WriteBookJob drives the whole-book pipeline under a book lock
type WriteBookJob struct {
	job.BookBase
	premise    string
	maxScenes  int
	sceneWords int
}

// NewWriteBookJob constructs the pipeline job. Props: "premise" (required),
// "scenes" (max scene count), "scene_words" (target words per scene).
func NewWriteBookJob(env *job.Env, locks *book.Store, j *job.Job) (job.Runner, error) {
	premise := j.Props.String("premise")
	if premise == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "write-book job requires a premise prop")
	}
	base, err := job.NewBookBase(env, locks, j)
	if err != nil {
		return nil, err
	}

	w := &WriteBookJob{
		BookBase:   *base,
		premise:    premise,
		maxScenes:  j.Props.Int("scenes"),
		sceneWords: j.Props.Int("scene_words"),
	}
	if w.maxScenes <= 0 {
		w.maxScenes = writeBookDefaultScenes
	}
	if w.sceneWords <= 0 {
		w.sceneWords = writeBookDefaultSceneWords
	}
	return w, nil
}

func (w *WriteBookJob) Execute(ctx context.Context) (bool, error) {
	w.Log(job.LevelInfo, "write-book pipeline starting for %q", w.Book.Title)

	outline, ok := w.step(ctx, book.ChunkTypeOutline, "outline", "Outline",
		"You are a novelist planning a book. Produce a numbered scene outline, one scene per line.",
		fmt.Sprintf("Book title: %s\nPremise: %s\n\nWrite a numbered outline of at most %d scenes.",
			w.Book.Title, w.premise, w.maxScenes),
		w.maxScenes*40)
	if !ok {
		return false, nil
	}

	annotated, ok := w.step(ctx, book.ChunkTypeOutline, "outline-notes", "Outline notes",
		"You are a novelist annotating an outline. For each scene, add a sentence on its purpose, tension and turn.",
		fmt.Sprintf("Premise: %s\n\nOutline:\n%s\n\nAnnotate each scene.", w.premise, outline),
		w.maxScenes*60)
	if !ok {
		return false, nil
	}

	if _, ok := w.step(ctx, book.ChunkTypeCharacters, "characters", "Characters",
		"You are a novelist developing a cast. Describe each major character in a short paragraph.",
		fmt.Sprintf("Premise: %s\n\nAnnotated outline:\n%s\n\nDescribe the major characters.", w.premise, annotated),
		400); !ok {
		return false, nil
	}

	if _, ok := w.step(ctx, book.ChunkTypeSettings, "settings", "Settings",
		"You are a novelist establishing settings. Describe each major location in a short paragraph.",
		fmt.Sprintf("Premise: %s\n\nAnnotated outline:\n%s\n\nDescribe the major settings.", w.premise, annotated),
		400); !ok {
		return false, nil
	}

	scenes := parseOutlineScenes(outline, w.maxScenes)
	if len(scenes) == 0 {
		w.Log(job.LevelError, "outline produced no parseable scenes")
		return false, nil
	}
	w.Log(job.LevelInfo, "outline parsed into %d scenes", len(scenes))

	for i, scene := range scenes {
		if w.IsCancelled() {
			w.Log(job.LevelInfo, "pipeline observed cancellation before scene %d", i+1)
			return false, nil
		}
		chunkID := fmt.Sprintf("scene-%03d", i+1)
		if _, ok := w.step(ctx, book.ChunkTypeText, chunkID, scene,
			"You are a novelist writing prose. Write the scene in full, matching the established outline, characters and settings.",
			fmt.Sprintf("Premise: %s\n\nAnnotated outline:\n%s\n\nWrite scene %d: %s", w.premise, annotated, i+1, scene),
			w.sceneWords); !ok {
			return false, nil
		}
	}

	w.Log(job.LevelInfo, "write-book pipeline finished: %d scenes written", len(scenes))
	return true, nil
}

// step runs one generation call and persists its output as a chunk. An empty
// or failed generation logs the problem and reports false; chunks written by
// earlier steps are left in place.
func (w *WriteBookJob) step(ctx context.Context, chunkType book.ChunkType, chunkID, title, system, prompt string, targetWords int) (string, bool) {
	if w.IsCancelled() {
		w.Log(job.LevelInfo, "pipeline observed cancellation before %q step", chunkID)
		return "", false
	}

	call := ai.NewCall(w.Env.Gen, "", system, prompt, targetWords, nil)
	if !call.Execute(ctx) {
		w.Log(job.LevelError, "%q generation failed: %v", chunkID, call.Err())
		return "", false
	}
	w.AddCost(call.Cost)

	content := strings.TrimSpace(call.Output)
	if content == "" {
		w.Log(job.LevelError, "%q generation returned empty output (stop reason %q)", chunkID, call.StopReason)
		return "", false
	}

	chunk, err := w.Env.Books.WriteChunk(w.Book.ID, chunkID, chunkType, title, content)
	if err != nil {
		w.Log(job.LevelError, "failed to persist %q chunk: %v", chunkID, err)
		return "", false
	}
	w.Log(job.LevelInfo, "wrote %q chunk version %d (%d words, $%.4f)",
		chunkID, chunk.Version, chunk.WordCount, call.Cost)
	return content, true
}

// parseOutlineScenes extracts scene descriptions from a numbered outline,
// one per non-empty line, stripping leading numbering and list markers
func parseOutlineScenes(outline string, max int) []string {
	var scenes []string
	for _, line := range strings.Split(outline, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789")
		line = strings.TrimLeft(line, ".):- \t")
		if line == "" {
			continue
		}
		scenes = append(scenes, line)
		if len(scenes) >= max {
			break
		}
	}
	return scenes
}
