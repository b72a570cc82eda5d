package jobs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/errors"
	"github.com/dfeldman/bookbot-sub000/job"
)

// TypeExport renders a book's latest chunks to markdown. Read-only: it
// acquires no locks and may run alongside any other job on the same book.
const TypeExport = "export"

// ExportJob assembles the book's latest non-deleted chunks into a single
// markdown document, written to the path in props or stored in the job's
// props under "output".
type ExportJob struct {
	job.ExportBase
	path string
}

// NewExportJob constructs an export job. Props: "path" (optional output file).
func NewExportJob(env *job.Env, locks *book.Store, j *job.Job) (job.Runner, error) {
	if j.BookID == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "export job requires a book id")
	}
	base, err := job.NewExportBase(env, locks, j)
	if err != nil {
		return nil, err
	}
	return &ExportJob{ExportBase: *base, path: j.Props.String("path")}, nil
}

func (e *ExportJob) Execute(ctx context.Context) (bool, error) {
	chunks, err := e.Env.Books.ListLatestChunks(e.Book.ID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to list chunks for book %s", e.Book.ID)
	}
	if len(chunks) == 0 {
		e.Log(job.LevelWarning, "book %q has no chunks to export", e.Book.Title)
		return false, nil
	}

	doc := renderMarkdown(e.Book, chunks)

	if e.path != "" {
		if err := os.WriteFile(e.path, []byte(doc), 0o644); err != nil {
			return false, errors.Wrapf(err, "failed to write export to %s", e.path)
		}
		e.Log(job.LevelInfo, "exported %d chunks to %s", len(chunks), e.path)
		return true, nil
	}

	if e.Job.Props == nil {
		e.Job.Props = job.Props{}
	}
	e.Job.Props["output"] = doc
	if err := e.Env.Jobs.UpdateProps(e.Job.ID, e.Job.Props); err != nil {
		return false, errors.Wrap(err, "failed to store export output")
	}
	e.Log(job.LevelInfo, "exported %d chunks into job props", len(chunks))
	return true, nil
}

// renderMarkdown lays the book out as a markdown document: title, then the
// structural chunks (outline, characters, settings) as sections, then the
// prose chunks in chunk-id order.
func renderMarkdown(b *book.Book, chunks []*book.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", b.Title)

	write := func(c *book.Chunk) {
		sb.WriteString("\n## ")
		if c.Title != "" {
			sb.WriteString(c.Title)
		} else {
			sb.WriteString(c.ChunkID)
		}
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(c.Content))
		sb.WriteString("\n")
	}

	for _, c := range chunks {
		if c.Type != book.ChunkTypeText && c.Type != book.ChunkTypeScene {
			write(c)
		}
	}
	for _, c := range chunks {
		if c.Type == book.ChunkTypeText || c.Type == book.ChunkTypeScene {
			write(c)
		}
	}
	return sb.String()
}
