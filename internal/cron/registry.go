package cron

import (
	"context"
	"strings"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its cron spec.
type Entry struct {
	Spec string
	Job  Job
}

// Registry tracks registered cron jobs.
type Registry struct {
	entries []Entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job under spec. Jobs with an empty spec are ignored so a
// deployment can disable one through configuration.
func (r *Registry) Register(spec string, job Job) {
	spec = strings.TrimSpace(spec)
	if job == nil || spec == "" {
		return
	}
	r.entries = append(r.entries, Entry{Spec: spec, Job: job})
}

// Entries returns the registered jobs in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Lookup returns the job registered under name.
func (r *Registry) Lookup(name string) (Job, bool) {
	for _, entry := range r.entries {
		if entry.Job.Name() == name {
			return entry.Job, true
		}
	}
	return nil, false
}
