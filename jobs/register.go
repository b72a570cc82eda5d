package jobs

import (
	"github.com/dfeldman/bookbot-sub000/job"
)

// RegisterAll wires every built-in job type into the processor
func RegisterAll(p *job.Processor) {
	p.Register(TypeDemo, NewDemoJob)
	p.Register(TypeFailing, NewFailingJob)
	p.Register(TypeWriteBook, NewWriteBookJob)
	p.Register(TypeExport, NewExportJob)
}

// Factories returns the built-in type-to-factory map, for callers that
// compose their own registry
func Factories() map[string]job.Factory {
	return map[string]job.Factory{
		TypeDemo:      NewDemoJob,
		TypeFailing:   NewFailingJob,
		TypeWriteBook: NewWriteBookJob,
		TypeExport:    NewExportJob,
	}
}
