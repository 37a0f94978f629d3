// Copyright 2025 convtb Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Session accumulates the results of a sequence of jobs in submission order.
// Emitters consume a session once every job has been simulated.
type Session struct {
	Results []*Result
	Trace   Trace
}

// Add simulates one job and appends its transactions to the session.
func (s *Session) Add(job *Job) error {
	r, err := Simulate(job)
	if err != nil {
		return err
	}
	s.append(r)
	return nil
}

func (s *Session) append(r *Result) {
	s.Results = append(s.Results, r)
	s.Trace.Append(&r.Trace)
}

// Jobs returns the jobs of the session in submission order.
func (s *Session) Jobs() []*Job {
	return lo.Map(s.Results, func(r *Result, _ int) *Job { return r.Job })
}

// RunJobs simulates jobs with at most parallel jobs in flight and returns a
// session whose sequences are concatenated in the order the jobs were given.
func RunJobs(ctx context.Context, jobs []*Job, parallel int) (*Session, error) {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]*Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := Simulate(job)
			if err != nil {
				return err
			}
			logf("simulated job %q: %d address events, %d output writes",
				job.Name, len(r.Trace.Addresses), len(r.Trace.Writes))
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s := &Session{}
	for _, r := range results {
		s.append(r)
	}
	return s, nil
}
