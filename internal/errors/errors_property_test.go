//go:build property

package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestErrorCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent reports keep one failure per task", prop.ForAll(
		func(tasks int, reports int) bool {
			c := NewErrorCollector()

			var wg sync.WaitGroup
			for g := 0; g < tasks; g++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for r := 0; r < reports; r++ {
						c.Report(fmt.Sprintf("task-%d", id), fmt.Errorf("failure %d", r))
					}
				}(g)
			}
			wg.Wait()

			failures := c.Failures()
			if len(failures) != tasks {
				return false
			}
			for _, f := range failures {
				if f.Message != fmt.Sprintf("failure %d", reports-1) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 30),
	))

	properties.Property("failures are sorted by task", prop.ForAll(
		func(names []string) bool {
			c := NewErrorCollector()
			for _, n := range names {
				c.Report(n, fmt.Errorf("x"))
			}
			failures := c.Failures()
			for i := 1; i < len(failures); i++ {
				if failures[i-1].Task >= failures[i].Task {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
