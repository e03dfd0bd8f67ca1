//go:build property
// +build property

package task

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/assetflow/internal/errors"
)

func TestCompositionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("series runs exactly the prefix up to the first failure", prop.ForAll(
		func(fails []bool) bool {
			var ran []int
			items := make([]Runnable, len(fails))
			for i, fail := range fails {
				i, fail := i, fail
				items[i] = New(fmt.Sprint(i), func(ctx context.Context) error {
					ran = append(ran, i)
					if fail {
						return stderrors.New("fail")
					}
					return nil
				})
			}

			err := Series(items...).Run(context.Background())

			first := -1
			for i, fail := range fails {
				if fail {
					first = i
					break
				}
			}
			if first == -1 {
				return err == nil && len(ran) == len(fails)
			}

			var step *errors.StepError
			return stderrors.As(err, &step) && step.Index == first && len(ran) == first+1
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("parallel runs everything and reports every failure", prop.ForAll(
		func(fails []bool) bool {
			var mu sync.Mutex
			ran := 0
			want := 0
			items := make([]Runnable, len(fails))
			for i, fail := range fails {
				fail := fail
				if fail {
					want++
				}
				items[i] = New(fmt.Sprint(i), func(ctx context.Context) error {
					mu.Lock()
					ran++
					mu.Unlock()
					if fail {
						return stderrors.New("fail")
					}
					return nil
				})
			}

			err := Parallel(items...).Run(context.Background())
			if ran != len(fails) {
				return false
			}
			if want == 0 {
				return err == nil
			}
			var agg *errors.AggregateError
			return stderrors.As(err, &agg) && agg.Len() == want
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
